package services

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"spendSmartAPI/internal/achievement"
	"spendSmartAPI/internal/challenge"
	"spendSmartAPI/internal/notification"
	"spendSmartAPI/internal/user"
)

type PushNotificationProvider interface {
	SendPush(ctx context.Context, tokens []notification.DeviceToken, title, body string, data map[string]string) error
}

type userLookup interface {
	GetUser(ctx context.Context, id uuid.UUID) (*user.User, error)
}

// AwardDispatcher pushes badge and challenge notifications from a small
// worker pool. Delivery is best effort: a full queue drops the job.
type AwardDispatcher struct {
	users        userLookup
	pushProvider PushNotificationProvider
	workers      int
	jobQueue     chan *DispatchJob
	stopChan     chan struct{}
	stopOnce     sync.Once
	wg           sync.WaitGroup
}

type DispatchJob struct {
	Notification *notification.Notification
}

func NewAwardDispatcher(users userLookup, workers int) *AwardDispatcher {
	if workers <= 0 {
		workers = 5
	}
	dispatcher := &AwardDispatcher{
		users:    users,
		workers:  workers,
		jobQueue: make(chan *DispatchJob, 100),
		stopChan: make(chan struct{}),
	}

	dispatcher.startWorkers()
	return dispatcher
}

// Allow injecting the real FCM provider from main.go
func (d *AwardDispatcher) SetPushProvider(provider PushNotificationProvider) {
	d.pushProvider = provider
}

func (d *AwardDispatcher) startWorkers() {
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.worker(i)
	}
}

func (d *AwardDispatcher) worker(id int) {
	defer d.wg.Done()
	for {
		select {
		case job := <-d.jobQueue:
			d.processJob(job)
		case <-d.stopChan:
			// drain what is already queued
			for {
				select {
				case job := <-d.jobQueue:
					d.processJob(job)
				default:
					return
				}
			}
		}
	}
}

func (d *AwardDispatcher) processJob(job *DispatchJob) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	notif := job.Notification
	if d.pushProvider == nil {
		log.Printf("Skipping push for user %s: no provider", notif.UserID)
		return
	}

	u, err := d.users.GetUser(ctx, notif.UserID)
	if err != nil {
		log.Printf("Push lookup failed for user %s: %v", notif.UserID, err)
		notificationsDropped.Inc()
		return
	}
	if len(u.DeviceTokens) == 0 {
		return
	}

	if err := d.pushProvider.SendPush(ctx, u.DeviceTokens, notif.Title, notif.Body, notif.Data); err != nil {
		log.Printf("Push failed for user %s: %v", notif.UserID, err)
		notificationsDropped.Inc()
	}
}

// Dispatch queues notif without blocking the caller.
func (d *AwardDispatcher) Dispatch(notif *notification.Notification) {
	select {
	case d.jobQueue <- &DispatchJob{Notification: notif}:
	default:
		log.Printf("Failed to queue notification %s: queue full", notif.ID)
		notificationsDropped.Inc()
	}
}

func (d *AwardDispatcher) NotifyAwards(userID uuid.UUID, awards []achievement.Achievement) {
	for _, a := range awards {
		d.Dispatch(&notification.Notification{
			ID:     uuid.New(),
			UserID: userID,
			Type:   notification.NotificationAchievement,
			Title:  "Badge unlocked",
			Body:   fmt.Sprintf("%s %s: %s", a.Icon, a.Name, a.Description),
			Data: map[string]string{
				"type":           string(notification.NotificationAchievement),
				"achievement_id": a.ID.String(),
			},
			CreatedAt: time.Now(),
		})
	}
}

// NotifyChallenge announces time-driven and progress-driven outcomes.
// Abandoning is the user's own action and is not announced.
func (d *AwardDispatcher) NotifyChallenge(userID uuid.UUID, inst challenge.Instance) {
	var (
		kind  notification.NotificationType
		title string
		body  string
	)
	switch inst.Status {
	case challenge.StatusCompleted:
		kind, title, body = notification.NotificationChallengeCompleted, "Challenge completed", "You reached 100% progress. Nice work!"
	case challenge.StatusExpired:
		kind, title, body = notification.NotificationChallengeExpired, "Challenge expired", "Your challenge ran out of time. Start a new one when you are ready."
	default:
		return
	}

	d.Dispatch(&notification.Notification{
		ID:     uuid.New(),
		UserID: userID,
		Type:   kind,
		Title:  title,
		Body:   body,
		Data: map[string]string{
			"type":         string(kind),
			"challenge_id": inst.ID.String(),
		},
		CreatedAt: time.Now(),
	})
}

// Stop the dispatcher gracefully. Queued jobs are still delivered.
func (d *AwardDispatcher) Stop() {
	d.stopOnce.Do(func() {
		log.Println("Stopping award dispatcher...")
		close(d.stopChan)
		d.wg.Wait()
		log.Println("Award dispatcher stopped")
	})
}

type MockPushProvider struct{}

func (m *MockPushProvider) SendPush(ctx context.Context, tokens []notification.DeviceToken, title, body string, data map[string]string) error {
	log.Printf("MOCK PUSH: Sending to %d devices: %s - %s", len(tokens), title, body)
	return nil
}
