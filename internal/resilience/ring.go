package resilience

import "github.com/davido182/depositdigest/internal/models"

// reportRing is a fixed-capacity circular buffer; pushing onto a full ring
// evicts the oldest report
type reportRing struct {
	buf   []*models.ErrorReport
	start int
	size  int
}

func newReportRing(capacity int) *reportRing {
	return &reportRing{buf: make([]*models.ErrorReport, capacity)}
}

func (r *reportRing) push(rep *models.ErrorReport) {
	if len(r.buf) == 0 {
		return
	}
	if r.size < len(r.buf) {
		r.buf[(r.start+r.size)%len(r.buf)] = rep
		r.size++
		return
	}
	r.buf[r.start] = rep
	r.start = (r.start + 1) % len(r.buf)
}

// each visits reports oldest first
func (r *reportRing) each(fn func(*models.ErrorReport)) {
	for i := 0; i < r.size; i++ {
		fn(r.buf[(r.start+i)%len(r.buf)])
	}
}

func (r *reportRing) reset() {
	for i := range r.buf {
		r.buf[i] = nil
	}
	r.start, r.size = 0, 0
}
