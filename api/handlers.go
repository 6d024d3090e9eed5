package api

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"tasksplus-api/domain"
)

// Register wires up all API routes on the provided Echo instance.
func Register(e *echo.Echo, store Store, auth Authenticator, broker *Broker, baseURL string, logger *log.Logger) {
	e.GET("/healthz", healthz())
	e.GET("/api/stats", getStats(store))
	e.GET("/api/tasks", getTasks(store, auth, baseURL, logger))
	e.GET("/api/tasks/stream", streamTasks(store, auth, broker, baseURL))
	e.POST("/api/tasks", postTask(store, auth))
	e.DELETE("/api/tasks/:id", deleteTask(store, auth))
	e.GET("/api/public/tasks/:id", getPublicTask(store, baseURL))
	e.GET("/api/public/tasks/:id/comments", getComments(store))
	e.POST("/api/tasks/:id/comments", postComment(store, auth))
	e.DELETE("/api/comments/:id", deleteComment(store, auth))
}

func healthz() echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	}
}

func getStats(store Store) echo.HandlerFunc {
	return func(c echo.Context) error {
		stats, err := store.FetchStats(c.Request().Context())
		if err != nil {
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, err.Error())
		}
		return c.JSON(http.StatusOK, stats)
	}
}

func getTasks(store Store, auth Authenticator, baseURL string, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) (err error) {
		ctx := c.Request().Context()
		metrics := newTaskRequestMetrics(logger)
		defer func() {
			metrics.Log(c.Response().Status, err)
		}()

		authStart := time.Now()
		identity, authErr := auth.IdentityFromAuthHeader(c.Request().Header.Get("Authorization"))
		metrics.ObserveAuth(time.Since(authStart))
		if authErr != nil {
			metrics.SetErrorStage("auth")
			err = c.String(http.StatusUnauthorized, authErr.Error())
			return err
		}

		fetchStart := time.Now()
		tasks, fetchErr := store.FetchTasks(ctx, identity.Email)
		metrics.ObserveFetch(time.Since(fetchStart))
		if fetchErr != nil {
			metrics.SetErrorStage("storage")
			c.Logger().Error(fetchErr)
			err = c.String(http.StatusInternalServerError, fetchErr.Error())
			return err
		}
		metrics.SetTasksReturned(len(tasks))

		encodeStart := time.Now()
		err = c.JSON(http.StatusOK, domain.AttachShareURLs(tasks, baseURL))
		metrics.ObserveEncode(time.Since(encodeStart))
		if err != nil {
			metrics.SetErrorStage("encode_response")
		}
		return err
	}
}

func postTask(store Store, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		identity, err := auth.IdentityFromAuthHeader(c.Request().Header.Get("Authorization"))
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}

		var req createTaskRequest
		if err := decodeBody(c.Request().Body, &req); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		// Empty text never reaches the store.
		if req.Task == "" {
			return c.String(http.StatusBadRequest, "empty task")
		}

		task, err := store.CreateTask(c.Request().Context(), identity.Email, req.Task, req.Public)
		if err != nil {
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, "failed to register task")
		}
		return c.JSON(http.StatusCreated, createdResponse{ID: task.ID})
	}
}

func deleteTask(store Store, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		identity, err := auth.IdentityFromAuthHeader(c.Request().Header.Get("Authorization"))
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}

		if err := store.DeleteTaskCascade(c.Request().Context(), identity.Email, c.Param("id")); err != nil {
			return mutationError(c, err, "failed to delete task")
		}
		return c.NoContent(http.StatusNoContent)
	}
}

func getPublicTask(store Store, baseURL string) echo.HandlerFunc {
	return func(c echo.Context) error {
		task, err := store.GetPublicTask(c.Request().Context(), c.Param("id"))
		if err != nil {
			return fetchError(c, err)
		}
		if baseURL != "" {
			task.ShareURL = domain.ShareLink(baseURL, task.ID)
		}
		return c.JSON(http.StatusOK, task)
	}
}

func getComments(store Store) echo.HandlerFunc {
	return func(c echo.Context) error {
		comments, err := store.FetchComments(c.Request().Context(), c.Param("id"))
		if err != nil {
			return fetchError(c, err)
		}
		return c.JSON(http.StatusOK, comments)
	}
}

func postComment(store Store, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		identity, err := auth.IdentityFromAuthHeader(c.Request().Header.Get("Authorization"))
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}

		var req createCommentRequest
		if err := decodeBody(c.Request().Body, &req); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		if req.Comment == "" {
			return c.String(http.StatusBadRequest, "empty comment")
		}

		comment, err := store.CreateComment(c.Request().Context(), identity, c.Param("id"), req.Comment)
		if err != nil {
			if errors.Is(err, domain.ErrTaskNotFound) {
				return c.String(http.StatusNotFound, "task not found")
			}
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, "failed to add comment")
		}
		return c.JSON(http.StatusCreated, createdResponse{ID: comment.ID})
	}
}

func deleteComment(store Store, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		identity, err := auth.IdentityFromAuthHeader(c.Request().Header.Get("Authorization"))
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}

		if err := store.DeleteComment(c.Request().Context(), identity.Email, c.Param("id")); err != nil {
			return mutationError(c, err, "failed to delete comment")
		}
		return c.NoContent(http.StatusNoContent)
	}
}

func decodeBody(body io.Reader, v any) error {
	lr := io.LimitReader(body, requestBodyMaxSize)
	dec := sonic.ConfigStd.NewDecoder(lr)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func mutationError(c echo.Context, err error, msg string) error {
	if errors.Is(err, domain.ErrForbidden) {
		return c.String(http.StatusForbidden, "forbidden")
	}
	c.Logger().Error(err)
	return c.String(http.StatusInternalServerError, msg)
}

func fetchError(c echo.Context, err error) error {
	if errors.Is(err, domain.ErrTaskNotFound) {
		return c.String(http.StatusNotFound, "task not found")
	}
	c.Logger().Error(err)
	return c.String(http.StatusInternalServerError, err.Error())
}
