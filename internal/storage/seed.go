package storage

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SeedIfEmpty inserts a starter document set on first run so the assistant
// has something to answer from before an admin uploads anything.
func (s *SQLiteStore) SeedIfEmpty(now time.Time) (int, error) {
	var count int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM documents`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count documents: %w", err)
	}
	if count > 0 {
		return 0, nil
	}

	seeds := []Document{
		{
			Title:    "Admissions overview",
			Content:  "Applications open in May. Eligibility requires a recognized bachelor's degree with at least 50% aggregate marks. Submit transcripts and the entrance exam score through the admissions portal.",
			Category: "admissions",
		},
		{
			Title:    "Fee structure",
			Content:  "Tuition fee is 85000 per year. Hostel fee is 90000 per year including mess charges. Fees are payable at the start of each academic year; late payment attracts a penalty after the grace period.",
			Category: "fees",
		},
		{
			Title:    "Examination rules",
			Content:  "Minimum 85% attendance is required to sit semester examinations. Internal assessment carries 50 marks and the semester exam carries 100 marks. Revaluation requests must be filed within two weeks of results.",
			Category: "academics",
		},
		{
			Title:    "Library hours",
			Content:  "The central library is open 8am to 10pm on weekdays and 9am to 5pm on weekends. Borrowing limit is six books for students. Digital journals are accessible on campus wifi.",
			Category: "facilities",
		},
	}

	for _, doc := range seeds {
		doc.ID = uuid.NewString()
		doc.UploadedAt = now.UTC()
		if err := s.SaveDocument(doc); err != nil {
			return 0, fmt.Errorf("seed document %q: %w", doc.Title, err)
		}
	}

	return len(seeds), nil
}
