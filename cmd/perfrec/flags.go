package main

import "time"

// Flag structs decouple cobra from command logic for testing.

type RecordFlags struct {
	Profile   string
	Device    string
	Output    string
	TimeLimit time.Duration
	TargetPID int
	// Remote daemon connection
	APIUrl     string
	APITimeout time.Duration
}

type StopFlags struct {
	Profile string
	Force   bool
	// Remote daemon connection
	APIUrl     string
	APITimeout time.Duration
}

type StatusFlags struct {
	Profile string
	// Remote daemon connection
	APIUrl     string
	APITimeout time.Duration
}

type ReportFlags struct {
	Profile string
	// Remote daemon connection
	APIUrl     string
	APITimeout time.Duration
}

type ServeFlags struct {
	ConfigPath string
}
