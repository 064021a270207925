// pkg/core/color.go
package core

import "github.com/lucasb-eyer/go-colorful"

var (
	Red   = colorful.Color{R: 1, G: 0, B: 0}
	Blue  = colorful.Color{R: 0, G: 0, B: 1}
	Green = colorful.Color{R: 0, G: 1, B: 0}
	Gray  = colorful.Color{R: 0.5, G: 0.5, B: 0.5}
	White = colorful.Color{R: 1, G: 1, B: 1}
)

// TeamColor returns the base color of a team. Unknown teams are gray.
func TeamColor(team TeamID) colorful.Color {
	switch team {
	case 0:
		return Red
	case 1:
		return Blue
	case 2:
		return Green
	default:
		return Gray
	}
}
