package domain

import (
	"encoding/json"
	"hash/fnv"

	"github.com/google/uuid"
)

// fingerprintFields — подмножество полей Schedule, влияющих на планирование.
// Ключи сериализуются в фиксированном порядке (struct, не map), поэтому
// hash стабилен между процессами.
type fingerprintFields struct {
	Domain    string         `json:"domain"`
	ProfileID *uuid.UUID     `json:"profile_id"`
	Frequency Frequency      `json:"frequency"`
	TimeSpec  TimeSpec       `json:"time_spec"`
	Enabled   bool           `json:"enabled"`
	ScanType  ScanType       `json:"scan_type"`
	Params    map[string]any `json:"params"`
}

// Fingerprint возвращает стабильный 64-битный hash полей schedule,
// влияющих на планирование. Bookkeeping-поля (next_run, last_run,
// last_status, updated_at) в hash не входят: их изменение не считается
// изменением расписания.
//
// Params сериализуются через encoding/json, который сортирует ключи map,
// поэтому порядок ключей на результат не влияет.
func (s *Schedule) Fingerprint() uint64 {
	b, err := json.Marshal(fingerprintFields{
		Domain:    s.Domain,
		ProfileID: s.ProfileID,
		Frequency: s.Frequency,
		TimeSpec:  s.TimeSpec,
		Enabled:   s.Enabled,
		ScanType:  s.ScanType,
		Params:    s.Params,
	})
	if err != nil {
		// Marshal map[string]any с JSON-совместимыми значениями не падает;
		// на всякий случай деградируем к нулевому hash.
		return 0
	}
	h := fnv.New64a()
	_, _ = h.Write(b)
	return h.Sum64()
}
