package domain

import (
	"fmt"
	"time"
)

// Start moves an upcoming or paused auction to active. A paused auction
// resumes with the time it had left; otherwise it runs for duration.
func (a *OnlineAuction) Start(now time.Time, duration time.Duration) error {
	if !a.Timed {
		return ErrNotTimedAuction
	}
	switch a.Status {
	case AuctionUpcoming, AuctionPaused:
	default:
		return fmt.Errorf("%w: cannot start a %s auction", ErrInvalidTransition, a.Status)
	}

	run := duration
	if a.Status == AuctionPaused && a.PausedRemaining > 0 {
		run = a.PausedRemaining
	}
	end := now.Add(run)
	a.Status = AuctionActive
	a.AuctionEndTime = &end
	a.PausedRemaining = 0
	return nil
}

func (a *OnlineAuction) Pause(now time.Time) error {
	if !a.Timed {
		return ErrNotTimedAuction
	}
	if a.Status != AuctionActive {
		return fmt.Errorf("%w: cannot pause a %s auction", ErrInvalidTransition, a.Status)
	}

	var remaining time.Duration
	if a.AuctionEndTime != nil {
		remaining = a.AuctionEndTime.Sub(now)
	}
	if remaining < 0 {
		remaining = 0
	}
	a.Status = AuctionPaused
	a.AuctionEndTime = nil
	a.PausedRemaining = remaining
	return nil
}

func (a *OnlineAuction) Finish() error {
	if !a.Timed {
		return ErrNotTimedAuction
	}
	switch a.Status {
	case AuctionActive, AuctionPaused:
	default:
		return fmt.Errorf("%w: cannot stop a %s auction", ErrInvalidTransition, a.Status)
	}
	a.Status = AuctionFinished
	a.AuctionEndTime = nil
	a.PausedRemaining = 0
	return nil
}

func (a *OnlineAuction) Reopen() error {
	if !a.Timed {
		return ErrNotTimedAuction
	}
	if a.Status != AuctionFinished {
		return fmt.Errorf("%w: cannot reopen a %s auction", ErrInvalidTransition, a.Status)
	}
	a.Status = AuctionUpcoming
	a.AuctionEndTime = nil
	return nil
}

// Expired reports whether an active timed auction has run past its end time.
func (a *OnlineAuction) Expired(now time.Time) bool {
	return a.Timed && a.Status == AuctionActive && a.AuctionEndTime != nil && !now.Before(*a.AuctionEndTime)
}

// NotBiddableReason reports why the auction cannot take a bid right now, or "" if it can.
func (a *OnlineAuction) NotBiddableReason(now time.Time) string {
	if !a.Timed {
		return ""
	}
	if a.Status != AuctionActive {
		return fmt.Sprintf("auction is %s", a.Status)
	}
	if a.Expired(now) {
		return "auction has ended"
	}
	return ""
}
