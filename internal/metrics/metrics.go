package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var HttpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "http_requests_total",
	Help: "Total number of requests labelled by path and status",
}, []string{"path", "status"})

var answerDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "answer_duration_seconds",
	Help:    "Time spent producing one answer.",
	Buckets: []float64{.5, 1, 2, 5, 10, 30, 60},
}, []string{"status"})

var answerRetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "answer_retries_total",
	Help: "Answer generation retries labelled by failure kind",
}, []string{"kind"})

var scrapeDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "scrape_duration_seconds",
	Help:    "Latency of college page fetches.",
	Buckets: []float64{.05, .1, .25, .5, 1, 2, 5, 10},
}, []string{"result"})

var scrapeCacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
	Name: "scrape_cache_hits_total",
	Help: "Page fetches served from the scrape cache",
})

var voiceSessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "voice_sessions_active",
	Help: "Whether a voice session currently holds the slot",
})

var voiceReconnectsTotal = promauto.NewCounter(prometheus.CounterOpts{
	Name: "voice_reconnects_total",
	Help: "Voice session redials after a dropped stream",
})

type HttpStatusRecorder struct {
	http.ResponseWriter
	Status int
}

func (r *HttpStatusRecorder) WriteHeader(code int) {
	r.Status = code
	r.ResponseWriter.WriteHeader(code)
}

func ObserveAnswer(status string, elapsed time.Duration) {
	answerDuration.WithLabelValues(status).Observe(elapsed.Seconds())
}

func CountAnswerRetry(kind string) {
	answerRetriesTotal.WithLabelValues(kind).Inc()
}

func ObserveScrape(result string, elapsed time.Duration) {
	scrapeDuration.WithLabelValues(result).Observe(elapsed.Seconds())
}

func CountScrapeCacheHit() {
	scrapeCacheHitsTotal.Inc()
}

func VoiceSessionStarted() {
	voiceSessionsActive.Set(1)
}

func VoiceSessionEnded() {
	voiceSessionsActive.Set(0)
}

func CountVoiceReconnect() {
	voiceReconnectsTotal.Inc()
}
