package main

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/peter-kozarec/ensemble/pkg/data/mapper"
)

func dumpCommand() *cli.Command {
	return &cli.Command{
		Name:      "dump",
		Usage:     "convert CSV trajectories (t,x,y,z,x0,y0,z0 with header) to the binary format",
		ArgsUsage: "<csv...>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "out",
				Required: true,
				Usage:    "binary output file",
			},
		},
		Action: dump,
	}
}

func dump(c *cli.Context) error {
	logger, _, cancel := setup(c)
	defer cancel()
	defer syncLogger(logger)

	if c.NArg() == 0 {
		return errors.New("at least one CSV file is required")
	}

	w := mapper.NewWriter[mapper.BinarySample](c.String("out"))
	if err := w.Create(); err != nil {
		return err
	}

	for _, path := range c.Args().Slice() {
		if err := dumpIt(path, w); err != nil {
			_ = w.Close()
			_ = os.Remove(c.String("out"))
			return err
		}
		logger.Info("dump finished", zap.String("file", path), zap.Int64("total", w.Count()))
	}
	return w.Close()
}

func dumpIt(csvPath string, w *mapper.Writer[mapper.BinarySample]) error {
	csvFile, err := os.Open(csvPath)
	if err != nil {
		return err
	}
	defer func(csvFile *os.File) {
		_ = csvFile.Close()
	}(csvFile)

	reader := csv.NewReader(csvFile)
	reader.FieldsPerRecord = 7

	// Skip header
	if _, err := reader.Read(); err != nil {
		return fmt.Errorf("%s: header: %w", csvPath, err)
	}

	for {
		record, err := reader.Read()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("%s: %w", csvPath, err)
		}

		var values [7]float64
		for i, field := range record {
			if values[i], err = strconv.ParseFloat(field, 64); err != nil {
				line, _ := reader.FieldPos(i)
				return fmt.Errorf("%s:%d: %w", csvPath, line, err)
			}
		}

		if err := w.Write(mapper.BinarySample{
			Time: values[0],
			X:    values[1],
			Y:    values[2],
			Z:    values[3],
			X0:   values[4],
			Y0:   values[5],
			Z0:   values[6],
		}); err != nil {
			return err
		}
	}
}
