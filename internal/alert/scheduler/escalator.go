package scheduler

import (
	"context"
	"log"
	"time"

	"plateping-backend/internal/alert/repository"
	"plateping-backend/internal/notification"
)

// Escalator periodically expires overdue alerts and re-sends unanswered ones
// with the next step of the message ladder.
type Escalator struct {
	alertRepo  repository.AlertRepository
	dispatcher *notification.Dispatcher
	interval   time.Duration
	stopChan   chan struct{}
}

// NewEscalator creates a new escalator loop.
func NewEscalator(alertRepo repository.AlertRepository, dispatcher *notification.Dispatcher, interval time.Duration) *Escalator {
	if interval <= 0 {
		interval = 1 * time.Minute
	}
	return &Escalator{
		alertRepo:  alertRepo,
		dispatcher: dispatcher,
		interval:   interval,
		stopChan:   make(chan struct{}),
	}
}

// Start begins the escalator loop
func (s *Escalator) Start() {
	log.Printf("[Escalator] Starting alert escalator (interval: %s)", s.interval)

	go func() {
		// Run immediately on start
		s.tick()

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				s.tick()
			case <-s.stopChan:
				log.Println("[Escalator] Escalator stopped")
				return
			}
		}
	}()
}

// Stop gracefully stops the escalator
func (s *Escalator) Stop() {
	close(s.stopChan)
}

func (s *Escalator) tick() {
	now := time.Now()

	expired, err := s.alertRepo.ExpireOverdue(now)
	if err != nil {
		log.Printf("[Escalator] Error expiring overdue alerts: %v", err)
	} else if expired > 0 {
		log.Printf("[Escalator] Expired %d overdue alerts", expired)
	}

	due, err := s.alertRepo.ListForEscalation(now)
	if err != nil {
		log.Printf("[Escalator] Error listing alerts for escalation: %v", err)
		return
	}
	if len(due) == 0 {
		return
	}

	log.Printf("[Escalator] Found %d alerts due for escalation", len(due))

	for _, alert := range due {
		alert := alert

		if s.dispatcher == nil {
			continue
		}

		// Only recipients that have not responded get the re-send. The
		// step counts actual re-sends, so it stays put when nobody is
		// left pending.
		pending, err := s.alertRepo.PendingRecipientIDs(alert.ID)
		if err != nil {
			log.Printf("[Escalator] Error loading pending recipients for alert %s: %v", alert.ID, err)
			continue
		}
		if len(pending) == 0 {
			continue
		}

		alert.EscalationStep++
		if err := s.alertRepo.BumpEscalation(alert.ID, alert.EscalationStep, now); err != nil {
			log.Printf("[Escalator] Error bumping escalation for alert %s: %v", alert.ID, err)
			continue
		}

		if _, err := s.dispatcher.Deliver(context.Background(), &alert, pending); err != nil {
			// Credential trouble: leave state alone, the next tick retries.
			log.Printf("[Escalator] Dispatch failed for alert %s: %v", alert.ID, err)
		}
	}
}
