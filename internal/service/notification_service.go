package service

import (
	"context"
	"log"

	"github.com/sibysi/agent-directory/internal/model"
	"github.com/sibysi/agent-directory/internal/repository"
)

type NotificationService interface {
	Notify(ctx context.Context, agentID, typ, title, body string, transactionID string)
	List(ctx context.Context, agentID string, limit int) ([]model.Notification, error)
}

type notificationService struct {
	repo repository.NotificationRepository
}

func NewNotificationService(repo repository.NotificationRepository) NotificationService {
	return &notificationService{repo: repo}
}

// Notify is best-effort; it logs errors but does not return them to avoid
// breaking the fulfillment flow.
func (s *notificationService) Notify(ctx context.Context, agentID, typ, title, body string, transactionID string) {
	if agentID == "" || typ == "" {
		return
	}
	n := &model.Notification{
		AgentID: agentID,
		Type:    typ,
		Title:   title,
		Body:    body,
	}
	if transactionID != "" {
		n.TransactionID = &transactionID
	}
	if err := s.repo.Create(ctx, n); err != nil {
		log.Printf("[notify] agent=%s type=%s err=%v", agentID, typ, err)
	}
}

func (s *notificationService) List(ctx context.Context, agentID string, limit int) ([]model.Notification, error) {
	return s.repo.ListByAgent(ctx, agentID, limit)
}
