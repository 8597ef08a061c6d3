// Package service holds read-model builders on top of the repositories.
package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/bookswap/backend/internal/logger"
	"github.com/bookswap/backend/internal/model"
	"github.com/bookswap/backend/internal/repository"
)

// snippetMaxRunes caps the preview text in a conversation summary.
const snippetMaxRunes = 120

// SummaryService builds per-user conversation summaries. Summaries are
// derived on every call, never stored.
type SummaryService struct {
	convRepo *repository.ConversationRepository
	msgRepo  *repository.MessageRepository
	userRepo *repository.UserRepository
}

func NewSummaryService(convRepo *repository.ConversationRepository, msgRepo *repository.MessageRepository, userRepo *repository.UserRepository) *SummaryService {
	return &SummaryService{convRepo: convRepo, msgRepo: msgRepo, userRepo: userRepo}
}

// ListSummaries returns one summary per conversation of userID, newest
// activity first. A conversation without messages sorts by its creation time.
// Ties break on conversation id ascending so the order is stable.
func (s *SummaryService) ListSummaries(ctx context.Context, userID string) ([]model.ConversationSummary, error) {
	defer logger.DeferLogDuration("SummaryService.ListSummaries", time.Now())()

	convs, err := s.convRepo.ListForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}

	summaries := make([]model.ConversationSummary, 0, len(convs))
	for i := range convs {
		conv := &convs[i]
		sum := model.ConversationSummary{
			ConversationID: conv.ID,
			CreatedAt:      conv.CreatedAt,
		}

		counterpartID := conv.Counterpart(userID)
		counterpart, err := s.userRepo.GetByID(ctx, counterpartID)
		switch {
		case err == nil:
			sum.Counterpart = counterpart.ToPublic()
		case errors.Is(err, repository.ErrNotFound):
			// Deleted account: keep the conversation visible with a bare id.
			sum.Counterpart = model.UserPublic{ID: counterpartID}
		default:
			return nil, fmt.Errorf("load counterpart %s: %w", counterpartID, err)
		}

		last, err := s.msgRepo.GetLastMessage(ctx, conv.ID)
		if err != nil {
			return nil, fmt.Errorf("last message for %s: %w", conv.ID, err)
		}
		if last != nil {
			t := last.CreatedAt
			sum.LastMessageAt = &t
			sum.LastMessageSnippet = snippet(last.Content)
		}
		summaries = append(summaries, sum)
	}

	sort.Slice(summaries, func(i, j int) bool {
		ai, aj := summaries[i].ActivityAt(), summaries[j].ActivityAt()
		if !ai.Equal(aj) {
			return ai.After(aj)
		}
		return summaries[i].ConversationID < summaries[j].ConversationID
	})
	return summaries, nil
}

// snippet truncates content to snippetMaxRunes runes.
func snippet(content string) string {
	runes := []rune(content)
	if len(runes) <= snippetMaxRunes {
		return content
	}
	return string(runes[:snippetMaxRunes])
}
