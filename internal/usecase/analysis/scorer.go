package analysis

import (
	"time"

	"github.com/google/uuid"

	"social-pilot/internal/domain"
)

// DefaultNoiseFloor отсекает слоты со слабым сигналом.
const DefaultNoiseFloor = 0.1

type slotKey struct {
	day  time.Weekday
	hour int
}

// ScoreTimeSlots считает нормированные оценки вовлечённости по слотам (день, час).
// Оценка слота — среднее число взаимодействий, делённое на максимум по всем
// слотам. Слоты с оценкой не выше noiseFloor отбрасываются. Функция чистая,
// порядок результата не гарантируется.
func ScoreTimeSlots(accountID uuid.UUID, posts []domain.HistoricalPost, noiseFloor float64) []domain.OptimalTimeSlot {
	if len(posts) == 0 {
		return nil
	}

	sums := make(map[slotKey]int)
	counts := make(map[slotKey]int)
	for _, post := range posts {
		key := slotKey{day: post.CreatedAt.Weekday(), hour: post.CreatedAt.Hour()}
		sums[key] += post.EngagementCount
		counts[key]++
	}

	averages := make(map[slotKey]float64, len(sums))
	maxAverage := 0.0
	for key, sum := range sums {
		avg := float64(sum) / float64(counts[key])
		averages[key] = avg
		if avg > maxAverage {
			maxAverage = avg
		}
	}

	slots := make([]domain.OptimalTimeSlot, 0, len(averages))
	for key, avg := range averages {
		score := 0.0
		if maxAverage > 0 {
			score = avg / maxAverage
		}
		if score <= noiseFloor {
			continue
		}
		slots = append(slots, domain.OptimalTimeSlot{
			SocialAccountID: accountID,
			DayOfWeek:       key.day,
			HourOfDay:       key.hour,
			EngagementScore: score,
		})
	}
	return slots
}
