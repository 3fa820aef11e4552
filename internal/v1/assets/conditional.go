package assets

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// ServeFile writes a file with its ETag, honoring If-None-Match. The weak
// comparison of RFC 9110 applies: a W/ prefix on either side is ignored, and
// "*" matches anything.
func (r *Resolver) ServeFile(c *gin.Context, path, contentType string) error {
	etag, err := r.ETag(path)
	if err != nil {
		return err
	}

	c.Header("ETag", etag)
	c.Header("Cache-Control", "private, max-age=0, must-revalidate")

	if matchesETag(c.GetHeader("If-None-Match"), etag) {
		c.Status(http.StatusNotModified)
		return nil
	}

	c.Header("Content-Type", contentType)
	c.File(path)
	return nil
}

// matchesETag implements the weak If-None-Match comparison over a
// comma-separated candidate list.
func matchesETag(ifNoneMatch, etag string) bool {
	if ifNoneMatch == "" {
		return false
	}
	if strings.TrimSpace(ifNoneMatch) == "*" {
		return true
	}
	target := stripWeak(etag)
	for _, candidate := range strings.Split(ifNoneMatch, ",") {
		if stripWeak(strings.TrimSpace(candidate)) == target {
			return true
		}
	}
	return false
}

func stripWeak(tag string) string {
	return strings.TrimPrefix(tag, "W/")
}
