package services

import (
	"context"
	"testing"

	"github.com/aarondl/null/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"triage-system/internal/dto"
	apperrors "triage-system/pkg/errors"
)

// fakeTicketFlow записывает вызовы переходов вместо настоящего движка.
type fakeTicketFlow struct {
	ticket dto.TicketDTO

	completedID   uint64
	completedWith dto.CompleteTicketDTO
	failedID      uint64
	failedWith    dto.FailTicketDTO
	findErr       error
}

func (f *fakeTicketFlow) FindTicket(id uint64) (dto.TicketDTO, error) {
	if f.findErr != nil {
		return dto.TicketDTO{}, f.findErr
	}
	return f.ticket, nil
}

func (f *fakeTicketFlow) Complete(ctx context.Context, id uint64, d dto.CompleteTicketDTO) (dto.TicketDTO, error) {
	f.completedID = id
	f.completedWith = d
	out := f.ticket
	out.Status = "CLOSED"
	return out, nil
}

func (f *fakeTicketFlow) MarkFailed(ctx context.Context, id uint64, d dto.FailTicketDTO) (dto.TicketDTO, error) {
	f.failedID = id
	f.failedWith = d
	out := f.ticket
	out.RetryCount++
	return out, nil
}

func TestCallService_AnsweredCompletesByAssignedStaff(t *testing.T) {
	flow := &fakeTicketFlow{
		ticket: dto.TicketDTO{
			ID:           10,
			Status:       "IN_PROGRESS",
			AssignedToID: null.Uint64From(42),
		},
	}
	s := NewCallService(flow, zap.NewNop())

	out, err := s.HandleCallEvent(context.Background(), dto.CallEventDTO{
		TicketID: 10,
		CallID:   "call-abc",
		Outcome:  "ANSWERED",
	})
	require.NoError(t, err)
	assert.Equal(t, "CLOSED", out.Status)
	assert.Equal(t, uint64(10), flow.completedID)
	assert.Equal(t, uint64(42), flow.completedWith.ResolvedByID, "решившим считается назначенный врач")
	assert.Equal(t, "call-abc", flow.completedWith.CallID.String)
	assert.Zero(t, flow.failedID)
}

func TestCallService_AnsweredWithoutAssigneeIsInvalidState(t *testing.T) {
	flow := &fakeTicketFlow{
		ticket: dto.TicketDTO{ID: 10, Status: "OPEN"},
	}
	s := NewCallService(flow, zap.NewNop())

	_, err := s.HandleCallEvent(context.Background(), dto.CallEventDTO{
		TicketID: 10,
		CallID:   "call-abc",
		Outcome:  "ANSWERED",
	})
	assert.True(t, apperrors.IsKind(err, apperrors.KindInvalidState))
	assert.Zero(t, flow.completedID)
}

func TestCallService_FailureOutcomesMarkFailed(t *testing.T) {
	for _, outcome := range []string{"BUSY", "NO_ANSWER", "FAILED"} {
		t.Run(outcome, func(t *testing.T) {
			flow := &fakeTicketFlow{
				ticket: dto.TicketDTO{ID: 7, Status: "IN_PROGRESS"},
			}
			s := NewCallService(flow, zap.NewNop())

			out, err := s.HandleCallEvent(context.Background(), dto.CallEventDTO{
				TicketID: 7,
				CallID:   "call-x",
				Outcome:  outcome,
			})
			require.NoError(t, err)
			assert.Equal(t, 1, out.RetryCount)
			assert.Equal(t, uint64(7), flow.failedID)
			assert.Equal(t, "call-x", flow.failedWith.CallID.String)
			assert.Zero(t, flow.completedID)
		})
	}
}

func TestCallService_UnknownOutcomeRejected(t *testing.T) {
	s := NewCallService(&fakeTicketFlow{}, zap.NewNop())

	_, err := s.HandleCallEvent(context.Background(), dto.CallEventDTO{
		TicketID: 1,
		CallID:   "call-x",
		Outcome:  "VOICEMAIL",
	})
	assert.True(t, apperrors.IsKind(err, apperrors.KindValidation))
}
