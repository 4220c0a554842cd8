package notify

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mamadbah2/rabbitry/internal/calendar"
	"github.com/mamadbah2/rabbitry/internal/domain/models"
	client "github.com/mamadbah2/rabbitry/pkg/clients/whatsapp"
)

type fakeClient struct {
	mu   sync.Mutex
	sent []client.SendTextMessageRequest
	err  error
}

func (f *fakeClient) SendTextMessage(_ context.Context, req client.SendTextMessageRequest) (*client.SendTextMessageResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.sent = append(f.sent, req)
	return &client.SendTextMessageResponse{}, nil
}

var testReminder = models.Reminder{
	ID:       "rem-1",
	FarmID:   "farm-1",
	Kind:     models.KindNestingBox,
	Severity: models.SeverityHigh,
	Message:  "Add a nesting box for doe Bella (hutch H1) by 2025-06-27.",
}

func TestRender(t *testing.T) {
	assert.Equal(t,
		"[URGENT] nesting box\nAdd a nesting box for doe Bella (hutch H1) by 2025-06-27.\nReply /done rem-1 once handled.",
		Render(testReminder))
}

func TestNotify_Recipients(t *testing.T) {
	fc := &fakeClient{}
	n := NewWhatsAppNotifier(fc, nil, "224000", nil)
	ctx := context.Background()
	day := calendar.MustParseDate("2025-06-26")

	require.NoError(t, n.Notify(ctx, models.Farm{ID: "farm-1", NotifyTo: "224111"}, day, testReminder))
	require.NoError(t, n.Notify(ctx, models.Farm{ID: "farm-2"}, day, testReminder))
	require.Len(t, fc.sent, 2)
	assert.Equal(t, "224111", fc.sent[0].To)
	assert.Equal(t, "224000", fc.sent[1].To)

	bare := NewWhatsAppNotifier(fc, nil, "", nil)
	assert.ErrorIs(t, bare.Notify(ctx, models.Farm{ID: "farm-3"}, day, testReminder), ErrNoRecipient)
}

func TestNotify_ClassifiesFailures(t *testing.T) {
	ctx := context.Background()
	day := calendar.MustParseDate("2025-06-26")
	farm := models.Farm{ID: "farm-1", NotifyTo: "224111"}

	fc := &fakeClient{err: &client.APIError{HTTPStatus: http.StatusTooManyRequests, Code: 130429}}
	err := NewWhatsAppNotifier(fc, nil, "", nil).Notify(ctx, farm, day, testReminder)
	assert.ErrorIs(t, err, ErrTransient)

	fc.err = errors.New("connection reset")
	err = NewWhatsAppNotifier(fc, nil, "", nil).Notify(ctx, farm, day, testReminder)
	assert.ErrorIs(t, err, ErrTransient)

	fc.err = &client.APIError{HTTPStatus: http.StatusBadRequest, Code: 100}
	err = NewWhatsAppNotifier(fc, nil, "", nil).Notify(ctx, farm, day, testReminder)
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrTransient)
}

func TestNotify_QuotaRefundedOnFailure(t *testing.T) {
	_, rdb := setupTestRedis(t)
	q := NewQuota(rdb, 1, nil)
	ctx := context.Background()
	day := calendar.MustParseDate("2025-06-26")
	farm := models.Farm{ID: "farm-1", NotifyTo: "224111"}

	fc := &fakeClient{err: errors.New("timeout")}
	n := NewWhatsAppNotifier(fc, q, "", nil)
	require.Error(t, n.Notify(ctx, farm, day, testReminder))

	fc.err = nil
	require.NoError(t, n.Notify(ctx, farm, day, testReminder))
	assert.ErrorIs(t, n.Notify(ctx, farm, day, testReminder), ErrLimitReached)
	assert.Len(t, fc.sent, 1)
}
