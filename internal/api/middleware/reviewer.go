package middleware

import (
	"context"
	"net/http"
	"strings"
)

type contextKey string

const ReviewerKey contextKey = "reviewer"

// ReviewerHeader names the reviewer a request acts for. It is attribution
// only; the gateway in front of replygate is responsible for identity.
const ReviewerHeader = "X-Reviewer"

const maxReviewerLength = 128

// Reviewer copies the reviewer header into the request context.
func Reviewer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reviewer := strings.TrimSpace(r.Header.Get(ReviewerHeader))
		if len(reviewer) > maxReviewerLength {
			reviewer = reviewer[:maxReviewerLength]
		}
		if reviewer == "" {
			next.ServeHTTP(w, r)
			return
		}
		ctx := context.WithValue(r.Context(), ReviewerKey, reviewer)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetReviewer returns the reviewer from context, or "" when none was sent.
func GetReviewer(ctx context.Context) string {
	reviewer, _ := ctx.Value(ReviewerKey).(string)
	return reviewer
}
