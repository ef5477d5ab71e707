package idempotency

import (
	"bytes"
	"io"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
)

// HeaderKey is the client-supplied idempotency key header.
const HeaderKey = "Idempotency-Key"

// captureWriter tees the handler's outgoing response so the guard can cache it
// without any cooperation from the handler.
type captureWriter struct {
	gin.ResponseWriter
	body bytes.Buffer
}

func (w *captureWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *captureWriter) WriteString(s string) (int, error) {
	w.body.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

// Middleware makes the guarded handler safe to submit more than once with the
// same Idempotency-Key. Requests without the header bypass the guard entirely.
//
// First request for a key: a locked record is created, the handler runs, and
// its status + body are stored before the record unlocks. While the record is
// locked a duplicate gets 409. Once unlocked, duplicates replay the cached
// response and the handler never runs again for that key.
func Middleware(store *Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetHeader(HeaderKey)
		if key == "" {
			c.Next()
			return
		}

		ctx := c.Request.Context()

		// keep the body readable for the handler after we record it
		var reqBody []byte
		if c.Request.Body != nil {
			reqBody, _ = io.ReadAll(c.Request.Body)
			c.Request.Body = io.NopCloser(bytes.NewReader(reqBody))
		}

		created, err := store.Begin(ctx, key, c.Request.Method, c.Request.URL.Path, string(reqBody))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "idempotency_check_failed"})
			return
		}

		if !created {
			// the key exists: either replay the cached response or report the
			// original request as still in flight. A creation race lands here
			// too, via the store's uniqueness condition.
			rec, err := store.Get(ctx, key)
			if err != nil || rec == nil {
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "idempotency_lookup_failed"})
				return
			}
			if !rec.Locked && rec.ResponseStatus != 0 {
				c.Data(rec.ResponseStatus, "application/json", []byte(rec.ResponseBody))
				c.Abort()
				return
			}
			c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "request already in progress"})
			return
		}

		cw := &captureWriter{ResponseWriter: c.Writer}
		c.Writer = cw

		c.Next()

		if err := store.Complete(ctx, key, cw.Status(), cw.body.String()); err != nil {
			// the response already went out; the key stays locked, which the
			// design accepts (no lock expiry)
			log.Printf("[idempotency] failed to cache response for key %s: %v", key, err)
		}
	}
}
