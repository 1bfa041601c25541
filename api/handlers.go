package api

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"github.com/ben-southpaw/vh-board/storage"
)

const requestBodyMaxSize = 4 << 10

// voterIDHeader carries the anonymous client identity. Absent header falls
// back to the process-local identity.
const voterIDHeader = "X-Voter-Id"

// Register wires up all API routes on the provided Echo instance and
// returns the broker used to wake SSE subscribers.
func Register(e *echo.Echo, b Board, logger *log.Logger) *Broker {
	broker := NewBroker()

	e.GET("/api/board", getBoard(b, logger))
	e.POST("/api/tickets", postTicket(b, broker))
	e.PATCH("/api/tickets/:id", patchTicket(b, broker))
	e.DELETE("/api/tickets/:id", deleteTicket(b, broker))
	e.POST("/api/tickets/:id/vote", toggleVote(b, broker))
	e.POST("/api/tickets/:id/edit", startEdit(b, broker))
	e.POST("/api/edit/cancel", cancelEdit(b, broker))
	e.GET("/stream", streamBoard(b, broker))
	e.GET("/healthz", healthz())

	return broker
}

func healthz() echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	}
}

func getBoard(b Board, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) (err error) {
		ctx := c.Request().Context()
		metrics, spanCtx := newBoardRequestMetrics(ctx, logger)
		if spanCtx != nil {
			c.SetRequest(c.Request().WithContext(spanCtx))
		}
		defer func() {
			metrics.Log(c.Response().Status, err)
		}()

		snap := b.Snapshot()
		returned := 0
		for _, bucket := range snap.TicketsByColumn {
			returned += len(bucket)
		}
		metrics.SetTicketsReturned(returned)
		if snap.Error != "" {
			metrics.SetErrorStage("board")
		}
		encodeStart := time.Now()
		err = c.JSON(http.StatusOK, snap)
		metrics.ObserveEncode(time.Since(encodeStart))
		if err != nil {
			metrics.SetErrorStage("encode_response")
		}
		return err
	}
}

type ticketRequest struct {
	Column  string `json:"column"`
	Title   string `json:"title"`
	Content string `json:"content"`
}

func decodeBody(c echo.Context, v any) error {
	lr := io.LimitReader(c.Request().Body, requestBodyMaxSize)
	dec := sonic.ConfigStd.NewDecoder(lr)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// writeError maps repository failures to 500 and everything else (validation,
// unknown tickets) to 400, always with the human-readable message.
func writeError(c echo.Context, err error) error {
	var re *storage.RepositoryError
	if errors.As(err, &re) {
		c.Logger().Error(err)
		return c.String(http.StatusInternalServerError, err.Error())
	}
	return c.String(http.StatusBadRequest, err.Error())
}

func postTicket(b Board, broker *Broker) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req ticketRequest
		if err := decodeBody(c, &req); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		if err := b.AddTicket(c.Request().Context(), req.Column, req.Title); err != nil {
			broker.Notify()
			return writeError(c, err)
		}
		broker.Notify()
		return c.JSON(http.StatusCreated, b.Snapshot())
	}
}

func patchTicket(b Board, broker *Broker) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req ticketRequest
		if err := decodeBody(c, &req); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		if err := b.StartEdit(c.Param("id")); err != nil {
			return writeError(c, err)
		}
		b.SetEditingTitle(req.Title)
		b.SetEditingContent(req.Content)
		if err := b.SaveEdit(c.Request().Context()); err != nil {
			broker.Notify()
			return writeError(c, err)
		}
		broker.Notify()
		return c.JSON(http.StatusOK, b.Snapshot())
	}
}

func deleteTicket(b Board, broker *Broker) echo.HandlerFunc {
	return func(c echo.Context) error {
		if err := b.DeleteTicket(c.Request().Context(), c.Param("id")); err != nil {
			broker.Notify()
			return writeError(c, err)
		}
		broker.Notify()
		return c.NoContent(http.StatusNoContent)
	}
}

func toggleVote(b Board, broker *Broker) echo.HandlerFunc {
	return func(c echo.Context) error {
		voterID := c.Request().Header.Get(voterIDHeader)
		if voterID == "" {
			voterID = b.VoterID()
		}
		if err := b.ToggleVote(c.Request().Context(), c.Param("id"), voterID); err != nil {
			return writeError(c, err)
		}
		broker.Notify()
		return c.NoContent(http.StatusAccepted)
	}
}

func startEdit(b Board, broker *Broker) echo.HandlerFunc {
	return func(c echo.Context) error {
		if err := b.StartEdit(c.Param("id")); err != nil {
			return writeError(c, err)
		}
		broker.Notify()
		return c.NoContent(http.StatusAccepted)
	}
}

func cancelEdit(b Board, broker *Broker) echo.HandlerFunc {
	return func(c echo.Context) error {
		b.CancelEdit()
		broker.Notify()
		return c.NoContent(http.StatusAccepted)
	}
}
