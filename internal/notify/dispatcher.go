package notify

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tphummel/service_report/internal/models"
)

// DefaultDelay is the simulated latency of a send.
const DefaultDelay = 2 * time.Second

// Notice is shown to the user once the mail client has been handed the
// prepared message.
const Notice = "O aplicativo de e-mail foi aberto.\n\nIMPORTANTE:\nNão esqueça de ANEXAR a imagem do relatório baixada."

// Store persists dispatch records for the life of the process.
// GetDispatchByServiceID returns sql.ErrNoRows when the service has not been sent.
type Store interface {
	CreateDispatch(d *models.Dispatch) error
	GetDispatchByServiceID(serviceID string) (*models.Dispatch, error)
}

// Request describes the reminder to send.
type Request struct {
	ServiceID      string
	Start          time.Time
	DurationMonths int
	Recipients     []string
	CC             string
}

// Result is the outcome of Send. AlreadySent is true when the dispatch was
// recorded by an earlier call.
type Result struct {
	Dispatch    *models.Dispatch `json:"dispatch"`
	AlreadySent bool             `json:"already_sent"`
	Notice      string           `json:"notice"`
}

// Dispatcher simulates sending the reminder: it waits Delay, then records the
// dispatch and returns the mailto: URI for the caller to open. Nothing is
// transmitted.
type Dispatcher struct {
	store  Store
	delay  time.Duration
	now    func() time.Time
	logger *slog.Logger

	mu    sync.Mutex
	locks map[string]chan struct{}
}

// NewDispatcher returns a Dispatcher recording into store. A negative delay
// is treated as zero.
func NewDispatcher(store Store, delay time.Duration, logger *slog.Logger) *Dispatcher {
	if delay < 0 {
		delay = 0
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		store:  store,
		delay:  delay,
		now:    time.Now,
		logger: logger,
		locks:  make(map[string]chan struct{}),
	}
}

// lock acquires the per-service slot, giving up when ctx is done.
func (d *Dispatcher) lock(ctx context.Context, serviceID string) (func(), error) {
	d.mu.Lock()
	l, ok := d.locks[serviceID]
	if !ok {
		l = make(chan struct{}, 1)
		d.locks[serviceID] = l
	}
	d.mu.Unlock()

	select {
	case l <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if err := ctx.Err(); err != nil {
		<-l
		return nil, err
	}
	return func() { <-l }, nil
}

// Send performs the simulated send for req. If ctx is done before the delay
// elapses nothing is recorded and ctx.Err() is returned. A service that was
// already sent returns its existing dispatch without waiting. A call queued
// behind another send for the same service stops waiting when ctx is done.
func (d *Dispatcher) Send(ctx context.Context, req Request) (Result, error) {
	if req.ServiceID == "" {
		return Result{}, errors.New("service id is required")
	}
	if len(req.Recipients) == 0 {
		return Result{}, errors.New("at least one recipient is required")
	}

	unlock, err := d.lock(ctx, req.ServiceID)
	if err != nil {
		return Result{}, err
	}
	defer unlock()

	existing, err := d.store.GetDispatchByServiceID(req.ServiceID)
	switch {
	case err == nil:
		return Result{Dispatch: existing, AlreadySent: true, Notice: Notice}, nil
	case !errors.Is(err, sql.ErrNoRows):
		return Result{}, fmt.Errorf("lookup dispatch: %w", err)
	}

	timer := time.NewTimer(d.delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		d.logger.LogAttrs(ctx, slog.LevelWarn, "dispatch abandoned",
			slog.String("service_id", req.ServiceID),
			slog.String("error", ctx.Err().Error()),
		)
		return Result{}, ctx.Err()
	case <-timer.C:
	}

	subject := Subject(req.ServiceID)
	body := RenderMessage(req.ServiceID, req.Start, req.DurationMonths)
	dispatch := &models.Dispatch{
		ID:           uuid.New().String(),
		ServiceID:    req.ServiceID,
		Recipients:   append([]string(nil), req.Recipients...),
		CC:           req.CC,
		Subject:      subject,
		MailtoURI:    MailtoURI(req.Recipients, req.CC, subject, body),
		DispatchedAt: d.now().UTC(),
	}
	if err := d.store.CreateDispatch(dispatch); err != nil {
		return Result{}, fmt.Errorf("record dispatch: %w", err)
	}

	d.logger.LogAttrs(ctx, slog.LevelInfo, "dispatch recorded",
		slog.String("service_id", req.ServiceID),
		slog.String("dispatch_id", dispatch.ID),
		slog.Int("recipients", len(req.Recipients)),
	)
	return Result{Dispatch: dispatch, Notice: Notice}, nil
}
