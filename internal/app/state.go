package app

// AppState represents the different views of the menu application.
type AppState int

const (
	ShowMenu AppState = iota
	FetchingData
	RunningAnalysis
	ShowOutput
	ShowError
	Exiting
)
