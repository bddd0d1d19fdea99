package main

import (
	"context"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"gitlab.com/d21d3q/gosml/internal/config"
	"gitlab.com/d21d3q/gosml/internal/logging"
	"gitlab.com/d21d3q/gosml/internal/meter"
	"gitlab.com/d21d3q/gosml/internal/metrics"
	"gitlab.com/d21d3q/gosml/internal/obis"
	"gitlab.com/d21d3q/gosml/internal/publish"
	"gitlab.com/d21d3q/gosml/internal/records"
	_ "gitlab.com/d21d3q/gosml/internal/sml" // register decoder
	"gitlab.com/d21d3q/gosml/internal/transport"
)

func newRunCmd() *cobra.Command {
	flags := &runFlags{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Read the meter and publish readings until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := envOverride(cmd.Flags(), logrus.StandardLogger()); err != nil {
				return err
			}
			cfg, err := config.Load(flags.configPath)
			if err != nil {
				return err
			}
			if err := flags.apply(cmd.Flags(), &cfg); err != nil {
				return err
			}
			log, err := logging.Configure(cfg.Logging)
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg, flags.once, log)
		},
	}
	flags.register(cmd.Flags())
	return cmd
}

func run(ctx context.Context, cfg config.Config, once bool, log *logrus.Logger) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	metrics.Register()
	if cfg.Metrics.Addr != "" {
		go func() {
			if err := metrics.Serve(ctx, cfg.Metrics.Addr, log); err != nil {
				log.WithError(err).Error("metrics endpoint stopped")
			}
		}()
	}

	keyFormat, err := obis.ParseFormat(cfg.SML.KeyFormat)
	if err != nil {
		return err
	}
	dec, err := records.Lookup(cfg.SML.Decoder, records.Options{VerifyCRC: cfg.SML.VerifyMessageCRC})
	if err != nil {
		return err
	}

	pub, err := newPublisher(ctx, cfg, keyFormat, log)
	if err != nil {
		return err
	}
	defer pub.Close()

	src := transport.NewSerial(transport.Config{
		Device:           cfg.Serial.Device,
		BaudRate:         cfg.Serial.BaudRate,
		ReadTimeout:      cfg.Serial.ReadTimeout,
		InterByteTimeout: cfg.Serial.InterByteTimeout,
		MaxBurst:         cfg.Serial.MaxBurst,
	}, transport.WithLogger(log))
	defer src.Close()

	reader := meter.NewReader(src, dec, meter.WithLogger(log), meter.WithMaxBuffer(cfg.SML.MaxBuffer))

	log.WithFields(logrus.Fields{
		"device":    cfg.Serial.Device,
		"baud_rate": cfg.Serial.BaudRate,
		"interval":  cfg.SML.Interval,
		"publisher": cfg.Output.Publisher,
	}).Info("sml2mqtt started")

	return reader.Run(ctx, cfg.SML.Interval, func(ctx context.Context, reading meter.Reading) error {
		err := pub.Publish(ctx, reading)
		metrics.RecordPublish(err)
		if err == nil {
			log.WithField("records", len(reading.Records)).Info("reading published")
		}
		if once {
			cancel()
		}
		return err
	})
}

func newPublisher(ctx context.Context, cfg config.Config, keyFormat obis.Format, log logrus.FieldLogger) (publish.Publisher, error) {
	if cfg.Output.Publisher == "writer" {
		return publish.NewWriter(os.Stdout, cfg.Output.Format, keyFormat)
	}
	m := publish.NewMQTT(publish.MQTTConfig{
		Broker:         cfg.Broker.URL(),
		ClientID:       cfg.Broker.ClientID,
		Username:       cfg.Broker.Username,
		Password:       cfg.Broker.Password,
		Topic:          cfg.Broker.Topic,
		QoS:            byte(cfg.Broker.QoS),
		Retain:         cfg.Broker.Retain,
		ConnectTimeout: cfg.Broker.ConnectTimeout,
		RetryInterval:  cfg.Broker.RetryInterval,
		KeyFormat:      keyFormat,
	}, publish.WithMQTTLogger(log))
	if err := m.Connect(ctx); err != nil {
		return nil, err
	}
	return m, nil
}
