package session

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/onnwee/grizzpector/nsoapi"
	"github.com/onnwee/grizzpector/splatnetapi"
	"github.com/onnwee/grizzpector/telemetry"
)

// Client reads game data on behalf of one session. Before each call it refreshes
// tokens known to be expired; when the service rejects the inner token it refreshes
// once and retries once. Anything beyond that is returned to the caller.
type Client struct {
	session *Session
	service ServiceAPI
	now     func() time.Time
}

// LatestShift returns the most recent Salmon Run shift.
func (c *Client) LatestShift(ctx context.Context) (*splatnetapi.CoopHistoryDetail, error) {
	var detail *splatnetapi.CoopHistoryDetail
	err := c.withBulletToken(ctx, func(ctx context.Context, bullet string) error {
		id, err := c.service.LatestCoopHistoryID(ctx, bullet)
		if err != nil {
			return err
		}
		detail, err = c.service.CoopHistoryDetail(ctx, bullet, id)
		return err
	})
	if err != nil {
		telemetry.LoggerWithCorr(ctx).Warn("latest shift failed",
			slog.String("component", "session"),
			slog.String("outer_state", c.session.OuterState().String()),
			slog.String("inner_state", c.session.InnerState().String()),
			slog.Any("err", err))
		return nil, err
	}
	return detail, nil
}

func (c *Client) withBulletToken(ctx context.Context, call func(ctx context.Context, bullet string) error) error {
	r := refresher{session: c.session}

	if c.session.Outer().Expired(c.now()) {
		if err := r.outer(ctx); err != nil {
			return err
		}
	}
	if c.session.Inner().Expired(c.now()) {
		if err := r.inner(ctx); err != nil {
			return err
		}
	}

	err := call(ctx, c.session.Inner().BulletToken)
	if err == nil || !errors.Is(err, splatnetapi.ErrUnauthorized) || r.innerDone {
		return err
	}
	if err := r.inner(ctx); err != nil {
		return err
	}
	return call(ctx, c.session.Inner().BulletToken)
}

// refresher allows at most one refresh of each token per facade call. An inner refresh
// that fails because the outer token was rejected refreshes the outer token, if it has
// not been refreshed yet, and tries the inner refresh again.
type refresher struct {
	session   *Session
	outerDone bool
	innerDone bool
}

func (r *refresher) outer(ctx context.Context) error {
	r.outerDone = true
	_, err := r.session.RefreshOuter(ctx)
	return err
}

func (r *refresher) inner(ctx context.Context) error {
	r.innerDone = true
	_, err := r.session.RefreshInner(ctx)
	if err == nil || r.outerDone || !errors.Is(err, nsoapi.ErrUnauthorized) {
		return err
	}
	if err := r.outer(ctx); err != nil {
		return err
	}
	_, err = r.session.RefreshInner(ctx)
	return err
}
