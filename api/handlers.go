package api

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"board-sync/board"
	"board-sync/domain"
)

const maxCommandBody = 1 << 20

// Register wires up all board routes on the provided Echo instance, one
// engine per mounted board. Each engine gets an update broker so transition
// commits and reconciled events fan out to its SSE subscribers.
func Register(e *echo.Echo, engines map[string]*board.Engine, perms Permissions, auth Authenticator, dedupe Deduper, logger *log.Logger) {
	brokers := make(map[string]*updateBroker, len(engines))
	for name, eng := range engines {
		b := newUpdateBroker()
		eng.SetOnChange(b.notify)
		brokers[name] = b
	}

	e.GET("/api/boards/:board", getBoard(engines, perms, auth))
	e.GET("/api/boards/:board/stream", streamBoard(engines, brokers, auth))
	e.POST("/api/boards/:board/move", postMove(engines, perms, auth, dedupe, logger))
	e.POST("/api/boards/:board/flows/:flow/confirm", postConfirm(engines, perms, auth))
	e.POST("/api/boards/:board/flows/:flow/cancel", postCancel(engines, perms, auth))
	e.POST("/api/boards/:board/archive", postArchive(engines, perms, auth, dedupe))
	e.GET("/healthz", healthz())
}

func healthz() echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	}
}

func engineFor(engines map[string]*board.Engine, c echo.Context) (*board.Engine, error) {
	eng, ok := engines[c.Param("board")]
	if !ok {
		return nil, echo.NewHTTPError(http.StatusNotFound, "unknown board")
	}
	return eng, nil
}

func decodeBody(c echo.Context, v any) error {
	lr := io.LimitReader(c.Request().Body, maxCommandBody)
	dec := sonic.ConfigStd.NewDecoder(lr)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

type boardResponse struct {
	board.Snapshot
	ReadOnly bool `json:"readOnly"`
}

func getBoard(engines map[string]*board.Engine, perms Permissions, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		eng, err := engineFor(engines, c)
		if err != nil {
			return err
		}
		userID, err := auth.UserIDFromAuthHeader(c.Request().Header.Get("Authorization"))
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}

		ctx := c.Request().Context()
		canWrite, err := perms.CanTransition(ctx, userID, eng.Definition().Name)
		if err != nil {
			// A failed permission lookup degrades the board to read-only.
			log.WithError(err).WithField("board", eng.Definition().Name).Warn("permission lookup failed")
			canWrite = false
		}
		return c.JSON(http.StatusOK, boardResponse{Snapshot: eng.Snapshot(), ReadOnly: !canWrite})
	}
}

type moveRequest struct {
	EntityID       string `json:"entityId"`
	Target         string `json:"target"`
	IdempotencyKey string `json:"idempotencyKey"`
}

type moveResponse struct {
	State          string          `json:"state"`
	Duplicate      bool            `json:"duplicate,omitempty"`
	IdempotencyKey string          `json:"idempotencyKey"`
	Flow           *board.FlowInfo `json:"flow,omitempty"`
	Entity         *domain.Entity  `json:"entity,omitempty"`
}

func postMove(engines map[string]*board.Engine, perms Permissions, auth Authenticator, dedupe Deduper, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) (err error) {
		metrics, spanCtx := newMoveRequestMetrics(c.Request().Context(), logger)
		c.SetRequest(c.Request().WithContext(spanCtx))
		ctx := spanCtx
		defer func() {
			metrics.Log(c.Response().Status, err)
		}()

		eng, engErr := engineFor(engines, c)
		if engErr != nil {
			metrics.SetErrorStage("unknown_board")
			err = engErr
			return err
		}
		metrics.SetBoard(eng.Definition().Name)

		authStart := time.Now()
		userID, authErr := auth.UserIDFromAuthHeader(c.Request().Header.Get("Authorization"))
		metrics.ObserveAuth(time.Since(authStart))
		if authErr != nil {
			metrics.SetErrorStage("auth")
			err = c.String(http.StatusUnauthorized, authErr.Error())
			return err
		}

		canWrite, permErr := perms.CanTransition(ctx, userID, eng.Definition().Name)
		if permErr != nil || !canWrite {
			metrics.SetErrorStage("permission")
			err = c.String(http.StatusForbidden, "board is read-only")
			return err
		}

		var req moveRequest
		if decErr := decodeBody(c, &req); decErr != nil {
			metrics.SetErrorStage("decode")
			err = c.String(http.StatusBadRequest, "invalid body")
			return err
		}
		if req.EntityID == "" || req.Target == "" {
			metrics.SetErrorStage("validate")
			err = c.String(http.StatusBadRequest, "entityId and target are required")
			return err
		}
		if req.IdempotencyKey == "" {
			req.IdempotencyKey = uuid.NewString()
		}

		added, dedupeErr := dedupe.Add(ctx, userID, req.IdempotencyKey)
		if dedupeErr != nil {
			metrics.SetErrorStage("dedupe")
			c.Logger().Error(dedupeErr)
			err = c.String(http.StatusInternalServerError, "idempotency check failed")
			return err
		}
		if !added {
			// Replayed command: acknowledge without a second write.
			metrics.SetDuplicate(true)
			err = c.JSON(http.StatusAccepted, moveResponse{State: "accepted", Duplicate: true, IdempotencyKey: req.IdempotencyKey})
			return err
		}

		proposeStart := time.Now()
		res, propErr := eng.Propose(ctx, req.EntityID, req.Target)
		metrics.ObservePropose(time.Since(proposeStart))
		if propErr != nil {
			if remErr := dedupe.Remove(ctx, userID, req.IdempotencyKey); remErr != nil {
				c.Logger().Error(remErr)
			}
			metrics.SetErrorStage("propose")
			err = transitionError(c, propErr)
			return err
		}

		metrics.SetResult(string(res.State))
		if res.Flow != nil {
			metrics.SetFlowKind(res.Flow.Kind)
		}
		err = c.JSON(http.StatusAccepted, moveResponse{
			State:          string(res.State),
			IdempotencyKey: req.IdempotencyKey,
			Flow:           res.Flow,
			Entity:         res.Entity,
		})
		return err
	}
}

func postConfirm(engines map[string]*board.Engine, perms Permissions, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		eng, err := engineFor(engines, c)
		if err != nil {
			return err
		}
		userID, err := auth.UserIDFromAuthHeader(c.Request().Header.Get("Authorization"))
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		ctx := c.Request().Context()
		canWrite, permErr := perms.CanTransition(ctx, userID, eng.Definition().Name)
		if permErr != nil || !canWrite {
			return c.String(http.StatusForbidden, "board is read-only")
		}

		var payload board.FlowPayload
		if err := decodeBody(c, &payload); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}

		res, err := eng.ConfirmFlow(ctx, c.Param("flow"), payload)
		if err != nil {
			return transitionError(c, err)
		}
		return c.JSON(http.StatusOK, res)
	}
}

type cancelResponse struct {
	Error        string `json:"error"`
	RevertFailed bool   `json:"revertFailed"`
}

func postCancel(engines map[string]*board.Engine, perms Permissions, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		eng, err := engineFor(engines, c)
		if err != nil {
			return err
		}
		userID, err := auth.UserIDFromAuthHeader(c.Request().Header.Get("Authorization"))
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		ctx := c.Request().Context()
		canWrite, permErr := perms.CanTransition(ctx, userID, eng.Definition().Name)
		if permErr != nil || !canWrite {
			return c.String(http.StatusForbidden, "board is read-only")
		}

		if err := eng.CancelFlow(ctx, c.Param("flow")); err != nil {
			var revertErr *board.RevertError
			if errors.As(err, &revertErr) {
				// The entity is visibly inconsistent until someone moves
				// it back; the client must surface this loudly.
				return c.JSON(http.StatusInternalServerError, cancelResponse{
					Error: revertErr.Error(), RevertFailed: true,
				})
			}
			return transitionError(c, err)
		}
		return c.NoContent(http.StatusNoContent)
	}
}

type archiveRequest struct {
	EntityID       string `json:"entityId"`
	IdempotencyKey string `json:"idempotencyKey"`
}

func postArchive(engines map[string]*board.Engine, perms Permissions, auth Authenticator, dedupe Deduper) echo.HandlerFunc {
	return func(c echo.Context) error {
		eng, err := engineFor(engines, c)
		if err != nil {
			return err
		}
		userID, err := auth.UserIDFromAuthHeader(c.Request().Header.Get("Authorization"))
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		ctx := c.Request().Context()
		canWrite, permErr := perms.CanTransition(ctx, userID, eng.Definition().Name)
		if permErr != nil || !canWrite {
			return c.String(http.StatusForbidden, "board is read-only")
		}

		var req archiveRequest
		if err := decodeBody(c, &req); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		if req.EntityID == "" {
			return c.String(http.StatusBadRequest, "entityId is required")
		}
		if req.IdempotencyKey == "" {
			req.IdempotencyKey = uuid.NewString()
		}
		added, dedupeErr := dedupe.Add(ctx, userID, req.IdempotencyKey)
		if dedupeErr != nil {
			c.Logger().Error(dedupeErr)
			return c.String(http.StatusInternalServerError, "idempotency check failed")
		}
		if !added {
			return c.JSON(http.StatusAccepted, moveResponse{State: "accepted", Duplicate: true, IdempotencyKey: req.IdempotencyKey})
		}

		res, propErr := eng.Propose(ctx, req.EntityID, domain.StatusArchived)
		if propErr != nil {
			if remErr := dedupe.Remove(ctx, userID, req.IdempotencyKey); remErr != nil {
				c.Logger().Error(remErr)
			}
			return transitionError(c, propErr)
		}
		return c.JSON(http.StatusAccepted, moveResponse{
			State:          string(res.State),
			IdempotencyKey: req.IdempotencyKey,
			Entity:         res.Entity,
		})
	}
}

// transitionError maps engine errors onto HTTP statuses.
func transitionError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, board.ErrUnknownEntity), errors.Is(err, domain.ErrNotFound):
		return c.String(http.StatusNotFound, err.Error())
	case errors.Is(err, board.ErrUnknownFlow):
		return c.String(http.StatusNotFound, err.Error())
	case errors.Is(err, board.ErrUnknownColumn), errors.Is(err, board.ErrInvalidPayload):
		return c.String(http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrConcurrencyConflict):
		return c.String(http.StatusConflict, err.Error())
	default:
		c.Logger().Error(err)
		return c.String(http.StatusInternalServerError, err.Error())
	}
}
