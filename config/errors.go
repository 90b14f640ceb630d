package config

import "fmt"

type ErrYAMLParse struct {
	Msg string
}

func (e ErrYAMLParse) Error() string {
	return fmt.Sprintf("yaml parse error: %s", e.Msg)
}

type ErrFileNotExist struct {
	Msg string
}

func (e ErrFileNotExist) Error() string {
	return fmt.Sprintf("file does not exist: %s", e.Msg)
}

type ErrUnsupportedDriver struct {
	Kind      string
	Driver    string
	Supported string
}

func (e ErrUnsupportedDriver) Error() string {
	return fmt.Sprintf("invalid %s driver; '%s' is not one of (%s)", e.Kind, e.Driver, e.Supported)
}
