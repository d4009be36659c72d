package telegram

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"guild-roster/api/internal/board"
	"guild-roster/api/internal/ocr"
	"guild-roster/api/internal/roster"
)

const debounce = 1200 * time.Millisecond

// photoBatch collects the photos of one album (or a quick series from one
// chat) until no new photo arrived for the debounce delay.
type photoBatch struct {
	chatID int64
	images []ocr.Image
	timer  *time.Timer
}

type batcher struct {
	delay time.Duration
	flush func(chatID int64, images []ocr.Image)

	mu sync.Mutex
	m  map[string]*photoBatch
}

func newBatcher(delay time.Duration, flush func(int64, []ocr.Image)) *batcher {
	return &batcher{delay: delay, flush: flush, m: make(map[string]*photoBatch)}
}

// add queues img and restarts the timer. It reports whether img opened the
// batch.
func (b *batcher) add(key string, chatID int64, img ocr.Image) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	pb, ok := b.m[key]
	if !ok {
		pb = &photoBatch{chatID: chatID}
		b.m[key] = pb
	}
	pb.images = append(pb.images, img)
	if pb.timer != nil {
		pb.timer.Stop()
	}
	pb.timer = time.AfterFunc(b.delay, func() { b.fire(key) })
	return len(pb.images) == 1
}

func (b *batcher) fire(key string) {
	b.mu.Lock()
	pb := b.m[key]
	delete(b.m, key)
	b.mu.Unlock()
	if pb != nil && len(pb.images) > 0 {
		b.flush(pb.chatID, pb.images)
	}
}

// choice is the reviewer's pick for one candidate.
type choice struct {
	skip   bool
	action roster.Action
	name   string
}

func (c choice) String() string {
	switch {
	case c.skip:
		return "skip"
	case c.action == roster.CreateNew:
		return "new " + c.name
	default:
		return "→ " + c.name
	}
}

// review mirrors the session ledger for the buttons of one chat. gen changes
// on every new review so buttons of an older batch are rejected.
type review struct {
	gen     int
	batch   string
	column  string
	cands   []board.Candidate
	choices map[int]choice
}

type reviews struct {
	mu   sync.Mutex
	next int
	m    map[int64]*review
}

func newReviews() *reviews { return &reviews{m: make(map[int64]*review)} }

func (rs *reviews) start(chatID int64, batch, column string, cands []board.Candidate) int {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.next++
	rs.m[chatID] = &review{gen: rs.next, batch: batch, column: column, cands: cands, choices: make(map[int]choice)}
	return rs.next
}

var errStaleReview = errors.New("nothing to review, or the buttons belong to an older scan")

// choose records c for candidate idx and returns the candidate.
func (rs *reviews) choose(chatID int64, gen, idx int, pick func(board.Candidate) (choice, error)) (board.Candidate, choice, error) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rv, ok := rs.m[chatID]
	if !ok || (gen != 0 && rv.gen != gen) {
		return board.Candidate{}, choice{}, errStaleReview
	}
	if idx < 0 || idx >= len(rv.cands) {
		return board.Candidate{}, choice{}, fmt.Errorf("no candidate #%d", idx+1)
	}
	c, err := pick(rv.cands[idx])
	if err != nil {
		return board.Candidate{}, choice{}, err
	}
	rv.choices[idx] = c
	return rv.cands[idx], c, nil
}

// decisions turns the recorded choices into ledger decisions, in index order,
// and returns the scan batch they belong to.
func (rs *reviews) decisions(chatID int64, gen int) (string, []roster.Decision, error) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rv, ok := rs.m[chatID]
	if !ok || (gen != 0 && rv.gen != gen) {
		return "", nil, errStaleReview
	}
	var out []roster.Decision
	for i := range rv.cands {
		c, ok := rv.choices[i]
		if !ok || c.skip {
			continue
		}
		out = append(out, roster.Decision{Index: i, Action: c.action, Name: c.name})
	}
	return rv.batch, out, nil
}

func (rs *reviews) current(chatID int64) (int, bool) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rv, ok := rs.m[chatID]
	if !ok {
		return 0, false
	}
	return rv.gen, true
}

func (rs *reviews) drop(chatID int64) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	delete(rs.m, chatID)
}
