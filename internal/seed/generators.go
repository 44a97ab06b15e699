package seed

import (
	"fmt"
	"math/rand"

	"github.com/brianvoe/gofakeit/v6"
)

// Chat messages read differently from prose, so instead of dumping raw fake
// sentences we mix short reactions, questions, and the occasional paragraph.
var reactions = []string{
	"lol", "haha yes", "no way", "same", "wait really?", "omg",
	"that's wild", "fair enough", "good point", "brb", "ok ok",
	"nice", "love that", "oof", "sounds good", "deal",
}

func conversationLine(r *rand.Rand) string {
	switch r.Intn(10) {
	case 0, 1:
		return reactions[r.Intn(len(reactions))]
	case 2:
		return fmt.Sprintf("have you seen %s?", gofakeit.MovieName())
	case 3:
		return gofakeit.Question()
	case 4:
		return gofakeit.Quote()
	case 5:
		return fmt.Sprintf("I'm at %s, want anything?", gofakeit.Company())
	default:
		return gofakeit.Sentence(4 + r.Intn(10))
	}
}
