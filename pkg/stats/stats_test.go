package stats

import (
	"bytes"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestStats_Update(t *testing.T) {
	s := New()
	s.Update(Request, Delta{Total: 1, Changed: 1})
	s.Update(Request, Delta{Total: 1, Failure: 1, Elapsed: 2 * time.Second})
	s.Update(Update, Delta{Total: 3, Changed: 3})

	req := s.Get(Request)
	assert.Equal(t, 2, req.Total)
	assert.Equal(t, 1, req.Changed)
	assert.Equal(t, 1, req.Failure)
	assert.Equal(t, 2*time.Second, req.Elapsed)
	assert.Equal(t, time.Second, req.Avg())

	assert.Equal(t, 3, s.Get(Update).Total)
}

func TestStats_UnknownCategoryIgnored(t *testing.T) {
	s := New()
	s.Update(Category(42), Delta{Total: 1})
	s.Update(Category(-1), Delta{Total: 1})

	assert.Equal(t, Counters{}, s.Get(Category(42)))
	assert.Equal(t, Counters{}, s.Get(Request))
}

func TestStats_NilReceiver(t *testing.T) {
	var s *Stats
	assert.NotPanics(t, func() {
		s.Update(Request, Delta{Total: 1})
		s.Reset()
		s.Add(New())
	})
	assert.Equal(t, Counters{}, s.Get(Request))
}

func TestStats_AddAndReset(t *testing.T) {
	a := New()
	b := New()
	a.Update(Request, Delta{Total: 2, Changed: 1})
	b.Update(Request, Delta{Total: 3, Failure: 2})
	b.Update(Update, Delta{Total: 5, Changed: 5})

	total := New()
	total.Add(a)
	total.Add(b)

	assert.Equal(t, Counters{Total: 5, Changed: 1, Failure: 2}, total.Get(Request))
	assert.Equal(t, Counters{Total: 5, Changed: 5}, total.Get(Update))

	a.Reset()
	assert.Equal(t, Counters{}, a.Get(Request))
	// Adding must not have mutated the source.
	assert.Equal(t, 3, b.Get(Request).Total)
}

func TestStats_Drain(t *testing.T) {
	s := New()
	s.Update(Update, Delta{Total: 4})

	out := s.Drain()
	assert.Equal(t, 4, out.Get(Update).Total)
	assert.Equal(t, 0, s.Get(Update).Total)
}

func TestStats_Concurrent(t *testing.T) {
	s := New()
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				s.Update(Request, Delta{Total: 1})
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1600, s.Get(Request).Total)
}

func TestStats_Log(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	s := New()
	s.Update(Request, Delta{Total: 2, Changed: 1})
	s.Log(logger, "cycle stats")

	out := buf.String()
	assert.Contains(t, out, `"category":"request"`)
	assert.Contains(t, out, `"total":2`)
	// Empty categories are skipped.
	assert.False(t, strings.Contains(out, `"category":"store"`))
}
