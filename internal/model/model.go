package model

import "time"

type Direction string

const (
	DirectionFrom Direction = "from"
	DirectionTo   Direction = "to"
)

type Country struct {
	Code        string
	Name        string
	Region      string
	IncomeGroup string
}

// Indicator is one row of the indicator catalogue. Description names the
// panel column and Tabname the exported sheet.
type Indicator struct {
	Code        string
	Description string
	Tabname     string
}

func (i Indicator) Column() string {
	if i.Description != "" {
		return i.Description
	}
	return i.Code
}

type TradeRecord struct {
	Provider string
	Reporter string
	Partner  string
	Year     int
	ValueUSD float64
}

type Coordinates struct {
	Latitude  float64
	Longitude float64
}

type CellRecord struct {
	Country   string
	Indicator string
	Value     float64
	Source    string
}

type RunKind string

const (
	RunPanel RunKind = "panel"
	RunTrade RunKind = "trade"
)

type Run struct {
	ID        string
	Kind      RunKind
	CreatedAt time.Time
}
