package player

import (
	"fmt"
	"time"

	"github.com/daniel-jacob-pearson/moosic/internal/store"
)

// DefaultPoll is the consumer's idle polling granularity. It bounds the
// latency between an enqueue and the start of playback when the server is
// otherwise idle.
const DefaultPoll = 50 * time.Millisecond

// Consumer is the long-running loop that pops songs off the queue and
// plays them one after another. It is the sole writer of Current and
// SongStart, and its Player sets PlayerPID; the only other write to
// PlayerPID is Signal clearing it for a child that has already exited.
type Consumer struct {
	Store  *store.Store
	Player *Player
	Poll   time.Duration
}

// Run consumes the queue until the store's quit flag is raised. It is
// meant to run in the server's main goroutine.
func (c *Consumer) Run() {
	poll := c.Poll
	if poll <= 0 {
		poll = DefaultPoll
	}
	s := c.Store
	for {
		s.Lock()
		if s.Quit {
			s.Unlock()
			return
		}
		if len(s.Queue) == 0 || !s.QueueRunning {
			s.Unlock()
			time.Sleep(poll)
			continue
		}

		song := s.Queue[0]
		s.Queue = s.Queue[1:]
		s.Current = song
		s.TouchQueue()
		s.SongStart = store.Now()
		s.AccumulatedPaused = 0
		s.Unlock()

		c.Player.Log.Info().Msgf("Started playing %s", song)
		c.Player.Run(song)

		s.Lock()
		elapsed := s.CurrentTime()
		s.Unlock()
		c.Player.Log.Info().Msgf("Finished playing %s (total playing time: %s)", song, clockFormat(elapsed))

		s.Lock()
		if s.IgnoreFinish {
			s.IgnoreFinish = false
		} else {
			if s.LoopMode {
				s.Queue = append(s.Queue, song)
				s.TouchQueue()
			}
			s.RecordHistory(song, s.SongStart, store.Now())
		}
		if !s.Quit {
			s.Current = nil
			s.Paused = false
		}
		s.Unlock()
	}
}

// clockFormat renders a number of seconds as HH:MM:SS.
func clockFormat(seconds float64) string {
	total := int(seconds)
	if total < 0 {
		total = 0
	}
	return fmt.Sprintf("%02d:%02d:%02d", total/3600, total%3600/60, total%60)
}
