package polymarket

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// DTOs raw de la API de Polymarket. Solo se usan dentro de este paquete.
// La conversión a domain entities se hace en mapping.go.

// --- Data API ---

// rawDataTrade es un item de GET /trades?user=.
type rawDataTrade struct {
	ProxyWallet     string      `json:"proxyWallet"`
	Side            string      `json:"side"`
	Asset           string      `json:"asset"`
	ConditionID     string      `json:"conditionId"`
	Size            flexScalar  `json:"size"`
	Price           flexScalar  `json:"price"`
	Timestamp       flexScalar  `json:"timestamp"`
	Title           string      `json:"title"`
	Slug            string      `json:"slug"`
	EventSlug       string      `json:"eventSlug"`
	Outcome         string      `json:"outcome"`
	TransactionHash string      `json:"transactionHash"`
	StartDate       string      `json:"startDate,omitempty"`
	EndDate         string      `json:"endDate,omitempty"`
}

// --- CLOB API ---

// orderBookResponse es la respuesta de GET /book.
type orderBookResponse struct {
	Market  string         `json:"market"`
	AssetID string         `json:"asset_id"`
	Bids    []bookEntryRaw `json:"bids"`
	Asks    []bookEntryRaw `json:"asks"`
}

// bookEntryRaw es un nivel de precio raw de la API (strings para mayor precisión).
type bookEntryRaw struct {
	Price string `json:"price"`
	Size  string `json:"size"`
}

// --- Gamma API ---

// gammaMarket contiene la metadata de un mercado.
// Gamma devuelve las listas (outcomePrices, clobTokenIds) unas veces como array
// JSON y otras como string con un array dentro; flexList acepta ambas.
type gammaMarket struct {
	ConditionID   string   `json:"conditionId"`
	Question      string   `json:"question"`
	Slug          string   `json:"slug"`
	EventSlug     string   `json:"eventSlug"`
	StartDate     string   `json:"startDate"`
	EndDate       string   `json:"endDate"`
	Active        bool     `json:"active"`
	Closed        bool     `json:"closed"`
	Resolved      bool     `json:"resolved"`
	Outcomes      flexList `json:"outcomes"`
	OutcomePrices flexList `json:"outcomePrices"`
	ClobTokenIDs  flexList `json:"clobTokenIds"`
}

// flexList decodifica `["a","b"]`, `[0.1, 1]` o `"[\"a\",\"b\"]"`.
// Cualquier otra cosa deja la lista vacía sin fallar el decode.
type flexList []string

func (l *flexList) UnmarshalJSON(b []byte) error {
	*l = nil
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return nil
	}

	if b[0] == '"' {
		var inner string
		if err := json.Unmarshal(b, &inner); err != nil {
			return nil
		}
		inner = strings.TrimSpace(inner)
		if inner == "" || inner[0] != '[' {
			return nil
		}
		b = []byte(inner)
	}

	var items []json.RawMessage
	if err := json.Unmarshal(b, &items); err != nil {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, raw := range items {
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			out = append(out, s)
			continue
		}
		var n json.Number
		if err := json.Unmarshal(raw, &n); err == nil {
			out = append(out, n.String())
			continue
		}
		out = append(out, "")
	}
	*l = out
	return nil
}

// flexScalar guarda un escalar JSON (número o string) como texto.
type flexScalar string

func (f *flexScalar) UnmarshalJSON(b []byte) error {
	*f = ""
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*f = flexScalar(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err == nil {
		*f = flexScalar(n.String())
	}
	return nil
}

// float parsea el escalar. ok=false si está vacío o no es numérico.
func (f flexScalar) float() (float64, bool) {
	v, err := strconv.ParseFloat(strings.TrimSpace(string(f)), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
