package output

import (
	"encoding/json"

	"github.com/keyboard-slayer/mcstatus/internal/address"
	"github.com/keyboard-slayer/mcstatus/internal/minecraft"
)

type result struct {
	Server           string            `json:"server"`
	Target           string            `json:"target,omitempty"`
	Status           *minecraft.Status `json:"status"`
	LatencyMS        int64             `json:"latency_ms,omitempty"`
	AnonymousPlayers int               `json:"anonymous_players,omitempty"`
}

func ToJSON(endpoint address.Endpoint, status *minecraft.Status) (string, error) {
	r := result{
		Server:    endpoint.String(),
		Status:    status,
		LatencyMS: status.Latency.Milliseconds(),
	}
	_, r.AnonymousPlayers = samplePlayers(status.Players.Sample)
	if endpoint.Redirected() {
		r.Target = endpoint.Target()
	}

	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}
