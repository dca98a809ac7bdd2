package telemetry

import (
	"fmt"
	"log/slog"
)

// BookmarkType identifies the type of bookmark.
type BookmarkType string

const (
	BookmarkJam        BookmarkType = "jam"
	BookmarkSurge      BookmarkType = "surge"
	BookmarkCleared    BookmarkType = "cleared"
	BookmarkSteadyFlow BookmarkType = "steady_flow"
)

// Bookmark represents an automatically triggered bookmark.
type Bookmark struct {
	Type        BookmarkType `csv:"type"`
	Tick        int32        `csv:"tick"`
	Description string       `csv:"description"`
}

// LogBookmark logs the bookmark.
func (b Bookmark) LogBookmark(logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("bookmark",
		"type", string(b.Type),
		"tick", b.Tick,
		"description", b.Description,
	)
}

// BookmarkDetector detects interesting moments in the crowd.
type BookmarkDetector struct {
	// Rolling history (circular buffer)
	history     []CrowdStats
	historySize int
	historyIdx  int
	historyFull bool

	jammed      bool
	peakActive  int
	steadyCount int
}

// NewBookmarkDetector creates a detector with the given history size.
func NewBookmarkDetector(historySize int) *BookmarkDetector {
	if historySize < 5 {
		historySize = 5 // minimum for steady flow detection
	}
	return &BookmarkDetector{
		history:     make([]CrowdStats, historySize),
		historySize: historySize,
	}
}

// Check analyzes the latest stats and returns any triggered bookmarks.
func (bd *BookmarkDetector) Check(stats CrowdStats) []Bookmark {
	var bookmarks []Bookmark

	if b := bd.checkJam(stats); b != nil {
		bookmarks = append(bookmarks, *b)
	}
	if b := bd.checkSurge(stats); b != nil {
		bookmarks = append(bookmarks, *b)
	}
	if b := bd.checkCleared(stats); b != nil {
		bookmarks = append(bookmarks, *b)
	}
	if b := bd.checkSteadyFlow(stats); b != nil {
		bookmarks = append(bookmarks, *b)
	}

	bd.addToHistory(stats)
	if stats.Active > bd.peakActive {
		bd.peakActive = stats.Active
	}

	return bookmarks
}

func (bd *BookmarkDetector) addToHistory(stats CrowdStats) {
	bd.history[bd.historyIdx] = stats
	bd.historyIdx = (bd.historyIdx + 1) % bd.historySize
	if bd.historyIdx == 0 {
		bd.historyFull = true
	}
}

// getHistory returns past windows oldest first.
func (bd *BookmarkDetector) getHistory() []CrowdStats {
	if !bd.historyFull {
		return bd.history[:bd.historyIdx]
	}
	out := make([]CrowdStats, 0, bd.historySize)
	out = append(out, bd.history[bd.historyIdx:]...)
	return append(out, bd.history[:bd.historyIdx]...)
}

// checkJam fires once when walking efficiency collapses with a crowd present,
// and re-arms when it recovers.
func (bd *BookmarkDetector) checkJam(stats CrowdStats) *Bookmark {
	if stats.Active < 10 {
		bd.jammed = false
		return nil
	}
	if bd.jammed {
		if stats.Efficiency > 0.6 {
			bd.jammed = false
		}
		return nil
	}
	if stats.Efficiency < 0.3 {
		bd.jammed = true
		return &Bookmark{
			Type:        BookmarkJam,
			Tick:        stats.WindowEndTick,
			Description: fmt.Sprintf("%d pedestrians at %.0f%% of desired speed", stats.Active, stats.Efficiency*100),
		}
	}
	return nil
}

func (bd *BookmarkDetector) checkSurge(stats CrowdStats) *Bookmark {
	history := bd.getHistory()
	if len(history) < 3 {
		return nil
	}

	var total int
	for _, h := range history {
		total += h.Spawned
	}
	avg := float64(total) / float64(len(history))
	if avg == 0 {
		return nil
	}

	if float64(stats.Spawned) > avg*2.0 && stats.Spawned >= 10 {
		return &Bookmark{
			Type:        BookmarkSurge,
			Tick:        stats.WindowEndTick,
			Description: fmt.Sprintf("%d spawned is %.1fx average (%.1f)", stats.Spawned, float64(stats.Spawned)/avg, avg),
		}
	}
	return nil
}

func (bd *BookmarkDetector) checkCleared(stats CrowdStats) *Bookmark {
	if bd.peakActive == 0 || stats.Active > 0 {
		return nil
	}
	peak := bd.peakActive
	bd.peakActive = 0
	return &Bookmark{
		Type:        BookmarkCleared,
		Tick:        stats.WindowEndTick,
		Description: fmt.Sprintf("Area cleared after peak of %d pedestrians", peak),
	}
}

func (bd *BookmarkDetector) checkSteadyFlow(stats CrowdStats) *Bookmark {
	if stats.Arrived < 5 {
		bd.steadyCount = 0
		return nil
	}

	history := bd.getHistory()
	if len(history) < 4 {
		return nil
	}
	recent := history[len(history)-4:]

	var sum float64
	for _, h := range recent {
		sum += h.Flow
	}
	mean := sum / 4
	if mean == 0 {
		bd.steadyCount = 0
		return nil
	}

	var variance float64
	for _, h := range recent {
		d := h.Flow - mean
		variance += d * d
	}
	variance /= 4

	if variance/(mean*mean) < 0.04 { // CV < 0.2
		bd.steadyCount++
	} else {
		bd.steadyCount = 0
	}

	if bd.steadyCount == 5 { // trigger exactly once at 5 windows
		return &Bookmark{
			Type:        BookmarkSteadyFlow,
			Tick:        stats.WindowEndTick,
			Description: fmt.Sprintf("Steady flow of %.2f ped/s over 5+ windows", mean),
		}
	}
	return nil
}
