package api

import (
	"net/http"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"

	"tasksplus-api/domain"
)

// streamTasks serves the live task list as server-sent events. The client
// gets a full snapshot on connect and a fresh full snapshot after every
// store-side change; there are no deltas. Snapshots carry the same share
// links as GET /api/tasks. The broker subscription is released when the
// request context ends.
func streamTasks(store Store, auth Authenticator, broker *Broker, baseURL string) echo.HandlerFunc {
	return func(c echo.Context) error {
		// EventSource cannot set headers, so the token may arrive as a
		// query parameter instead.
		token := c.QueryParam("token")
		authHeader := c.Request().Header.Get(echo.HeaderAuthorization)
		if authHeader == "" && token != "" {
			authHeader = "Bearer " + token
		}
		identity, err := auth.IdentityFromAuthHeader(authHeader)
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		c.Response().Header().Set(echo.HeaderContentType, "text/event-stream")
		c.Response().Header().Set(echo.HeaderCacheControl, "no-cache")
		c.Response().Header().Set(echo.HeaderConnection, "keep-alive")
		c.Response().Header().Set("X-Accel-Buffering", "no")
		flusher, ok := c.Response().Writer.(http.Flusher)
		if !ok {
			return c.String(http.StatusInternalServerError, "stream unsupported")
		}
		ctx := c.Request().Context()

		tasks, err := store.FetchTasks(ctx, identity.Email)
		if err != nil {
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, err.Error())
		}
		data, err := sonic.Marshal(domain.AttachShareURLs(tasks, baseURL))
		if err != nil {
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, err.Error())
		}

		ch := broker.Subscribe(identity.Email)
		defer broker.Unsubscribe(identity.Email, ch)
		for {
			if _, err := c.Response().Write([]byte("data: ")); err != nil {
				return nil
			}
			if _, err := c.Response().Write(data); err != nil {
				return nil
			}
			if _, err := c.Response().Write([]byte("\n\n")); err != nil {
				return nil
			}
			flusher.Flush()
			select {
			case <-ctx.Done():
				return nil
			case data = <-ch:
				continue
			}
		}
	}
}
