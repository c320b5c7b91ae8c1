package arena

import (
	"sort"

	"github.com/aeroduel/arena/go/internal/models"
)

// Results is the final outcome of a match.
type Results struct {
	Winners []string       `json:"winners"`
	Scores  []models.Score `json:"scores"`
}

// Rank orders planes by hits descending, then hits taken ascending. Every
// plane tying the top (hits, hitsTaken) pair is a winner, so draws between
// any number of planes are possible.
func Rank(planes []models.Plane) Results {
	scores := make([]models.Score, 0, len(planes))
	for _, p := range planes {
		scores = append(scores, models.ScoreOf(p))
	}
	sort.SliceStable(scores, func(i, j int) bool {
		if scores[i].Hits != scores[j].Hits {
			return scores[i].Hits > scores[j].Hits
		}
		return scores[i].HitsTaken < scores[j].HitsTaken
	})

	winners := []string{}
	if len(scores) > 0 {
		top := scores[0]
		for i := range scores {
			if scores[i].Hits == top.Hits && scores[i].HitsTaken == top.HitsTaken {
				scores[i].Winner = true
				winners = append(winners, scores[i].PlaneID)
			}
		}
	}
	return Results{Winners: winners, Scores: scores}
}

// Scoreboard returns the live scores of planes in roster order.
func Scoreboard(planes []models.Plane) []models.Score {
	scores := make([]models.Score, 0, len(planes))
	for _, p := range planes {
		scores = append(scores, models.ScoreOf(p))
	}
	return scores
}
