package logger

import (
	"go.uber.org/zap"
)

// New builds the process logger. Development mode gets human-readable
// console output; everything else logs structured JSON.
func New(environment string) (*zap.SugaredLogger, error) {
	var (
		log *zap.Logger
		err error
	)
	if environment == "development" {
		log, err = zap.NewDevelopment()
	} else {
		log, err = zap.NewProduction()
	}
	if err != nil {
		return nil, err
	}
	return log.Sugar(), nil
}
