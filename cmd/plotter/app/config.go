package app

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
)

const (
	ImagePNG  ImageFormat = "png"
	ImageJPEG ImageFormat = "jpeg"

	defaultWidth       = 1600
	defaultPanelHeight = 240
)

type ImageFormat string

type Config struct {
	DBPath        string
	SessionID     int64
	OutputFile    string
	Format        ImageFormat
	FromMillis    *int64
	ToMillis      *int64
	Width         int
	PanelHeight   int
	NoAnnotations bool
}

var validImageFormats = map[ImageFormat]struct{}{
	ImagePNG:  {},
	ImageJPEG: {},
}

func NewConfig() *Config {
	return &Config{
		Format:      ImagePNG,
		Width:       defaultWidth,
		PanelHeight: defaultPanelHeight,
	}
}

func NewConfigFromCLI() (*Config, error) {
	return NewConfigFromArgs(flag.CommandLine, os.Args[1:])
}

// NewConfigFromArgs parses args with fs, registering the plotter flags on it.
func NewConfigFromArgs(fs *flag.FlagSet, args []string) (*Config, error) {
	c := NewConfig()

	var imageFormat string
	var from, to int64
	fs.StringVar(&c.DBPath, "db", "", "Path to the database file")
	fs.Int64Var(&c.SessionID, "s", 1, "Session ID")
	fs.StringVar(&c.OutputFile, "o", "", "Path to the output file, without extension")
	fs.StringVar(&imageFormat, "f", string(ImagePNG), "Output image format. [png, jpeg]")
	fs.Int64Var(&from, "from", 0, "Plot records from this many milliseconds since boot")
	fs.Int64Var(&to, "to", 0, "Plot records up to this many milliseconds since boot")
	fs.IntVar(&c.Width, "width", defaultWidth, "Width of the plot area in pixels")
	fs.IntVar(&c.PanelHeight, "panel-height", defaultPanelHeight, "Height of each panel in pixels")
	fs.BoolVar(&c.NoAnnotations, "no-annotations", false, "Disable annotations such as titles, scales and the info bar")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	imageFormat = strings.ToLower(imageFormat)

	fs.Visit(func(f *flag.Flag) {
		if f.Name == "from" {
			c.FromMillis = &from
		}
		if f.Name == "to" {
			c.ToMillis = &to
		}
	})

	var err error
	if c.DBPath == "" {
		err = errors.New("db path is required")
	} else if c.SessionID <= 0 {
		err = errors.New("session id is required")
	} else if c.OutputFile == "" {
		err = errors.New("output file is required")
	} else if _, ok := validImageFormats[ImageFormat(imageFormat)]; !ok {
		err = fmt.Errorf("invalid image format: %s", imageFormat)
	} else if c.Width < 100 || c.PanelHeight < 50 {
		err = fmt.Errorf("plot area %dx%d is too small", c.Width, c.PanelHeight)
	} else if c.FromMillis != nil && c.ToMillis != nil && *c.FromMillis > *c.ToMillis {
		err = fmt.Errorf("range start %d ms is after range end %d ms", *c.FromMillis, *c.ToMillis)
	}

	if err != nil {
		fs.Usage()
		return nil, err
	}

	c.Format = ImageFormat(imageFormat)
	c.OutputFile = fmt.Sprintf("%s.%s", c.OutputFile, c.Format)
	return c, nil
}
