package gemini

import (
	"fmt"
	"strings"

	"voice_review/internal/domain"
)

const unableToTranscribe = "[Unable to transcribe]"

const transcribePrompt = `Transcribe this voice message word for word. Output only the transcription.
If the audio is empty or unintelligible, output exactly "` + unableToTranscribe + `".`

const extractTemplate = `You read transcripts of voice notes in which people review hotels they stayed at.
%s
Latest transcript: %q

Reply with a single JSON object and nothing else:
{
  "isHotelReview": boolean,
  "hotelName": "hotel name, including the city when the speaker said it, or null",
  "hotelCity": "city mentioned, or null",
  "personName": "the speaker's name if they gave it, or null",
  "cleanedReview": "the transcript without filler words, or null",
  "food": "2-6 word summary of the food, or null",
  "foodScore": 1-5 or null,
  "amenities": "2-6 word summary of the room and amenities, or null",
  "amenitiesScore": 1-5 or null,
  "location": "2-6 word summary of the location, or null",
  "locationScore": 1-5 or null,
  "service": "2-6 word summary of the service, or null",
  "serviceScore": 1-5 or null,
  "overallSentiment": "positive" | "negative" | "mixed" | "neutral"
}

Scores: 5 excellent or amazing, 4 good or nice, 3 okay or fine, 2 mediocre or disappointing, 1 bad or terrible.
For location: 5 right in the centre, 4 fairly central, 3 a bit off centre, 2 far from the centre, 1 isolated.
Only fill fields the speaker actually talked about.`

const synthesizeTemplate = `Merge these voice note transcripts into one readable review paragraph.

%s

Drop filler words (uh, um, like, you know, I mean, basically). Fix grammar and punctuation.
Keep the speaker's words, meaning and voice. Do not add opinions or facts.
If they introduced themselves, keep that at the start.
Reply with the review text only.`

const verifyTemplate = `Check whether this hotel exists: %q%s

If a city is given, only accept a hotel in that city.
Reply with a single JSON object and nothing else.

When it exists:
{
  "exists": true,
  "fullName": "official name",
  "description": "2-3 sentence description",
  "location": "city, country",
  "address": "street address",
  "latitude": number,
  "longitude": number,
  "website": "url or null",
  "category": "luxury|boutique|resort|business|budget|historic",
  "amenities": ["..."]
}

When it does not:
{"exists": false, "similarHotel": "a real hotel with a similar name in the same city, or null"}`

func extractPrompt(text string, prior *domain.ReviewSession) string {
	ctx := ""
	if prior != nil {
		ctx = "\nAlready known about this review:\n" +
			"- hotel: " + orNotMentioned(prior.VenueName) + "\n" +
			"- city: " + orNotMentioned(prior.VenueCity) + "\n" +
			"- reviewer: " + orNotMentioned(prior.ReviewerName) + "\n" +
			"- food: " + aspectOrNotMentioned(prior.Food) + "\n" +
			"- amenities: " + aspectOrNotMentioned(prior.Amenities) + "\n" +
			"- location: " + aspectOrNotMentioned(prior.Location) + "\n" +
			"- service: " + aspectOrNotMentioned(prior.Service) + "\n"
	}
	return fmt.Sprintf(extractTemplate, ctx, text)
}

func synthesizePrompt(transcripts []string) string {
	return fmt.Sprintf(synthesizeTemplate, strings.Join(transcripts, "\n\n"))
}

func verifyPrompt(name, city string) string {
	in := ""
	if city != "" {
		in = " in " + city
	}
	return fmt.Sprintf(verifyTemplate, name, in)
}

func orNotMentioned(p *string) string {
	if p == nil || *p == "" {
		return "not mentioned"
	}
	return *p
}

func aspectOrNotMentioned(a *domain.Aspect) string {
	if !a.Known() {
		return "not mentioned"
	}
	return a.Summary
}
