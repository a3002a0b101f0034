package domain

import "strings"

const (
	EventInsert = "INSERT"
	EventUpdate = "UPDATE"
	EventDelete = "DELETE"
	EventAll    = "*"
)

// ChangeEvent avisa que una tabla cambio. No lleva la fila afectada.
type ChangeEvent struct {
	Table string `json:"table"`
	Event string `json:"event"`
}

// MatchesEvents reporta si el evento pasa el filtro de tipos pedido.
// Un filtro vacio o con "*" acepta todo.
func (e ChangeEvent) MatchesEvents(events []string) bool {
	if len(events) == 0 {
		return true
	}
	for _, ev := range events {
		ev = strings.ToUpper(strings.TrimSpace(ev))
		if ev == EventAll || ev == strings.ToUpper(e.Event) {
			return true
		}
	}
	return false
}
