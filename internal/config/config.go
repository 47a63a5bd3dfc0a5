package config

import "time"

//go:generate go tool optgen -output zz_generated.configuration.options.go . Configuration

// Configuration holds everything the harness needs to run one scenario.
type Configuration struct {
	Proxy    Proxy
	Store    Store
	Origin   Origin
	Ports    Ports
	Scenario Scenario
	Log      Log
}

// Proxy describes the proxy under test.
type Proxy struct {
	// Binary must exist on disk; relative paths resolve from the working directory.
	Binary     string `default:"./haproxy" validate:"required"`
	ListenHost string `default:"0.0.0.0" validate:"required,ip"`
}

// Store describes the queueing store the proxy pushes into.
type Store struct {
	// Binary is looked up on PATH.
	Binary string `default:"redis-server" validate:"required"`
	Host   string `default:"127.0.0.1" validate:"required,ip"`
	// ExtraArgs are appended after --port <N>, shell quoted.
	ExtraArgs string `default:"--loglevel warning"`
}

type Origin struct {
	Host          string `default:"127.0.0.1" validate:"required,ip"`
	ResponsesFile string
}

// Ports is the range ports are sampled from, upper bound exclusive.
type Ports struct {
	Lower    int `default:"33792" validate:"gte=1,ltfield=Upper"`
	Upper    int `default:"64512" validate:"lte=65536"`
	Attempts int `default:"10" validate:"gte=1"`
}

type Scenario struct {
	Bucket        string   `default:"test-bucket" validate:"required,excludesall=/ "`
	Key           string   `default:"foo-key" validate:"required"`
	BucketPrefix  string   `default:"bucket" validate:"required"`
	Buckets       []string `default:"[\"foo\",\"test-bucket\"]" validate:"min=1,dive,required,excludesall=/ "`
	Payload       string   `default:"foo"`
	InitialWrites int      `default:"32" validate:"gte=1"`
	FinalWrites   int      `default:"4" validate:"gte=1"`

	ReadyTimeout      time.Duration `default:"10s" validate:"gt=0"`
	SettleInterval    time.Duration `default:"1s" validate:"gte=0"`
	ReconnectInterval time.Duration `default:"2s" validate:"gte=0"`
	AssertTimeout     time.Duration `default:"2s" validate:"gte=0"`
	StopTimeout       time.Duration `default:"5s" validate:"gt=0"`
}

type Log struct {
	Level  string `default:"info" validate:"oneof=debug info warn error"`
	Format string `default:"console" validate:"oneof=console json"`
}
