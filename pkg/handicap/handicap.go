package handicap

import (
	"errors"
	"math"
)

// Format selects the threshold model for a match.
type Format string

const (
	FiveOnFive   Format = "5v5"
	ThreeOnThree Format = "3v3"
)

var ErrInvalidDifferential = errors.New("handicap differential is not a number")
var ErrUnknownFormat = errors.New("unknown match format")

// Result holds the game-count thresholds for one side of a match. GamesToTie
// is nil when no tie is representable for the given format and differential.
type Result struct {
	GamesToWin  int
	GamesToTie  *int
	GamesToLose int
}

// ForPlayers maps a per-team roster size to its threshold model.
func ForPlayers(playersPerTeam int) Format {
	if playersPerTeam == 3 {
		return ThreeOnThree
	}
	return FiveOnFive
}

// TotalGames returns how many regular games the format plays.
func TotalGames(format Format) int {
	if format == ThreeOnThree {
		return 18
	}
	return 25
}

// fiveOnFiveBands maps |differential| to the higher-handicap side's games to
// win. Anything past the last band saturates at 19.
var fiveOnFiveBands = []struct {
	upTo float64
	win  int
}{
	{14, 13},
	{40, 14},
	{66, 15},
	{92, 16},
	{118, 17},
	{144, 18},
}

// threeOnThreeWins is the higher-handicap side's games to win for
// |differential| 0..12 after rounding.
var threeOnThreeWins = [13]int{10, 10, 11, 11, 12, 12, 13, 13, 14, 14, 15, 15, 16}

// Thresholds computes games-to-win, games-to-tie and games-to-lose for the
// side of the table whose differential is diff (own handicap minus the
// opponent's). diff >= 0 counts the caller as the higher-handicap side.
// Out-of-range differentials clamp; the only fatal input is NaN.
func Thresholds(diff float64, format Format) (Result, error) {
	if math.IsNaN(diff) {
		return Result{}, ErrInvalidDifferential
	}

	switch format {
	case FiveOnFive:
		return fiveOnFive(diff), nil
	case ThreeOnThree:
		return threeOnThree(diff), nil
	default:
		return Result{}, ErrUnknownFormat
	}
}

func fiveOnFive(diff float64) Result {
	abs := math.Abs(diff)
	higher := 19
	for _, band := range fiveOnFiveBands {
		if abs <= band.upTo {
			higher = band.win
			break
		}
	}

	// 25 games, odd total: no tie slot. The opposite side's target is the
	// remainder, and each side loses one game before the opponent's target.
	// Signbit keeps the two sides of an even matchup distinguishable: the
	// side handing in -0.0 is the lower-handicap one.
	win := higher
	opponent := 25 - higher
	if math.Signbit(diff) {
		win, opponent = opponent, win
	}
	return Result{
		GamesToWin:  win,
		GamesToTie:  nil,
		GamesToLose: opponent - 1,
	}
}

func threeOnThree(diff float64) Result {
	d := int(math.Round(diff))
	if d > 12 {
		d = 12
	}
	if d < -12 {
		d = -12
	}

	abs := d
	if abs < 0 {
		abs = -abs
	}
	higher := threeOnThreeWins[abs]

	// Odd differentials have no tie slot, so the two targets share 19 of the
	// 18+1 decision points; even differentials leave a single tied score.
	win := higher
	opponent := higher
	if abs%2 == 0 {
		opponent = 20 - higher
	} else {
		opponent = 19 - higher
	}
	if d < 0 {
		win, opponent = opponent, win
	}

	res := Result{
		GamesToWin:  win,
		GamesToLose: 18 - opponent,
	}
	if abs%2 == 0 {
		tie := win - 1
		res.GamesToTie = &tie
	}
	return res
}
