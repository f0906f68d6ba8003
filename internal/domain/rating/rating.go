package rating

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/clubhub/marketplace/internal/domain/apperr"
	"github.com/clubhub/marketplace/internal/domain/offer"
	"github.com/clubhub/marketplace/internal/domain/party"
)

const (
	MinScore = 1
	MaxScore = 5
	// CommentMaxLen bounds both the comment and the reviewee's response.
	CommentMaxLen = 500
)

// Rating is one party's review of the other after a confirmed transaction.
type Rating struct {
	ID           int64           `json:"-"`
	RatingID     uuid.UUID       `json:"ratingId"`
	OfferID      uuid.UUID       `json:"offerId"`
	ItemID       uuid.UUID       `json:"itemId"`
	Reviewer     party.Ref       `json:"reviewer"`
	Reviewee     party.Ref       `json:"reviewee"`
	ReviewerRole offer.PartyRole `json:"reviewerRole"`
	Score        int             `json:"score"`
	Comment      *string         `json:"comment,omitempty"`
	Response     *string         `json:"response,omitempty"`
	RespondedAt  *time.Time      `json:"respondedAt,omitempty"`
	CreatedAt    time.Time       `json:"createdAt"`
}

// New builds a validated rating for the transaction behind o.
func New(o *offer.Offer, reviewer, reviewee party.Ref, role offer.PartyRole, score int, comment string) (*Rating, error) {
	if err := ValidateScore(score); err != nil {
		return nil, err
	}
	if err := ValidateText("comment", comment); err != nil {
		return nil, err
	}
	return &Rating{
		RatingID:     uuid.New(),
		OfferID:      o.OfferID,
		ItemID:       o.ItemID,
		Reviewer:     reviewer.Canonical(),
		Reviewee:     reviewee.Canonical(),
		ReviewerRole: role,
		Score:        score,
		Comment:      optionalText(comment),
		CreatedAt:    time.Now().UTC(),
	}, nil
}

// HasResponse reports whether the reviewee already answered.
func (r *Rating) HasResponse() bool {
	return r.Response != nil
}

func ValidateScore(score int) error {
	if score < MinScore || score > MaxScore {
		return apperr.Validation("score must be between %d and %d", MinScore, MaxScore)
	}
	return nil
}

func ValidateText(field, text string) error {
	if utf8.RuneCountInString(strings.TrimSpace(text)) > CommentMaxLen {
		return apperr.Validation("%s exceeds %d characters", field, CommentMaxLen)
	}
	return nil
}

// Summary aggregates the ratings received by one party.
type Summary struct {
	Count   int     `json:"count"`
	Average float64 `json:"average"`
}

// Summarize computes count and mean score.
func Summarize(ratings []*Rating) Summary {
	if len(ratings) == 0 {
		return Summary{}
	}
	total := 0
	for _, r := range ratings {
		total += r.Score
	}
	return Summary{Count: len(ratings), Average: float64(total) / float64(len(ratings))}
}

func optionalText(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
