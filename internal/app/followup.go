package app

import (
	"fmt"
	"strings"

	"voice_review/internal/domain"
)

type missingItem struct {
	key    string
	phrase string
}

// missingItems lists what is still unknown, in asking priority order.
func missingItems(s *domain.ReviewSession) []missingItem {
	var out []missingItem
	if s.ReviewerName == nil {
		out = append(out, missingItem{"reviewer_name", "your name (so I can attribute your review)"})
	}
	if !s.Food.Known() {
		out = append(out, missingItem{"food", "the food or dining experience"})
	}
	if !s.Amenities.Known() {
		out = append(out, missingItem{"amenities", "the amenities (room, pool, gym, spa, etc.)"})
	}
	if !s.Location.Known() {
		out = append(out, missingItem{"location", "the location and accessibility"})
	}
	if !s.Service.Known() {
		out = append(out, missingItem{"service", "the service and staff"})
	}
	return out
}

const askVenueQuestion = "Thank you for your feedback! Could you please tell me which hotel you stayed at?"

// followUpQuestion covers at most two missing items.
func followUpQuestion(venue string, missing []missingItem) string {
	switch {
	case len(missing) == 0:
		return ""
	case len(missing) == 1:
		if missing[0].key == "reviewer_name" {
			return "Almost done! One more thing - what name should I put on your review?"
		}
		return fmt.Sprintf("Almost done! One more thing - how was %s?", missing[0].phrase)
	}

	pair := missing[0].phrase + " and " + missing[1].phrase
	if len(missing) >= 4 {
		return fmt.Sprintf("Thank you for sharing your experience at %s! To complete your review, could you tell me a bit more? I'd love to hear about %s. What was your experience like?", venue, pair)
	}
	return fmt.Sprintf("Thanks for the details! Could you also share your thoughts on %s?", pair)
}

func approvalPrompt(cleaned string) string {
	return fmt.Sprintf("Here is your review:\n\n\"%s\"\n\nIs this ok? Reply Yes or No", cleaned)
}

const approvalReprompt = "Please reply Yes to confirm or No to start over."

type approvalReply int

const (
	replyUnclear approvalReply = iota
	replyYes
	replyNo
)

func parseApprovalReply(text string) approvalReply {
	t := strings.ToLower(strings.TrimSpace(text))
	t = strings.TrimRight(t, ".!")
	switch t {
	case "yes", "y", "ok", "okay":
		return replyYes
	case "no", "n", "nope":
		return replyNo
	}
	return replyUnclear
}
