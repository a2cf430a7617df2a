package options

import (
	utilerrors "k8s.io/apimachinery/pkg/util/errors"
	cliflag "k8s.io/component-base/cli/flag"
	"k8s.io/klog/v2"

	"github.com/autopeer-io/skypeer/internal/pilot"
	"github.com/autopeer-io/skypeer/pkg/app"
	"github.com/autopeer-io/skypeer/pkg/log"
	"github.com/autopeer-io/skypeer/pkg/options"
)

type PilotOptions struct {
	PilotOptions *options.PilotOptions `json:"pilot" mapstructure:"pilot"`
	LinkOptions  *options.LinkOptions  `json:"link" mapstructure:"link"`
	VideoOptions *options.VideoOptions `json:"video" mapstructure:"video"`
	HttpOptions  *options.HttpOptions  `json:"http" mapstructure:"http"`
	MqttOptions  *options.MqttOptions  `json:"mqtt" mapstructure:"mqtt"`
	S3Options    *options.S3Options    `json:"s3" mapstructure:"s3"`
	Log          *log.Options          `json:"log" mapstructure:"log"`
}

var _ app.NamedFlagSetOptions = (*PilotOptions)(nil)

func NewPilotOptions() *PilotOptions {
	o := &PilotOptions{
		PilotOptions: options.NewPilotOptions(),
		LinkOptions:  options.NewLinkOptions(),
		VideoOptions: options.NewVideoOptions(),
		HttpOptions:  options.NewHttpOptions(),
		MqttOptions:  options.NewMqttOptions(),
		S3Options:    options.NewS3Options(),
		Log:          log.NewOptions(),
	}

	return o
}

func (o *PilotOptions) Flags() cliflag.NamedFlagSets {
	fss := cliflag.NamedFlagSets{}
	o.PilotOptions.AddFlags(fss.FlagSet("pilot"))
	o.LinkOptions.AddFlags(fss.FlagSet("link"))
	o.VideoOptions.AddFlags(fss.FlagSet("video"))
	o.HttpOptions.AddFlags(fss.FlagSet("http"))
	o.MqttOptions.AddFlags(fss.FlagSet("mqtt"))
	o.S3Options.AddFlags(fss.FlagSet("s3"))
	o.Log.AddFlags(fss.FlagSet("log"))
	return fss
}

// Complete installs the process logger and routes klog through it.
func (o *PilotOptions) Complete() error {
	log.Init(o.Log)
	klog.SetLogger(log.Std().Logr())
	return nil
}

func (o *PilotOptions) Validate() error {
	errs := []error{}
	errs = append(errs, o.PilotOptions.Validate()...)
	errs = append(errs, o.LinkOptions.Validate()...)
	errs = append(errs, o.VideoOptions.Validate()...)
	errs = append(errs, o.HttpOptions.Validate()...)
	errs = append(errs, o.MqttOptions.Validate()...)
	errs = append(errs, o.S3Options.Validate()...)
	errs = append(errs, o.Log.Validate()...)
	return utilerrors.NewAggregate(errs)
}

func (o *PilotOptions) Config() (*pilot.Config, error) {
	return &pilot.Config{
		PilotOptions: o.PilotOptions,
		LinkOptions:  o.LinkOptions,
		VideoOptions: o.VideoOptions,
		HttpOptions:  o.HttpOptions,
		MqttOptions:  o.MqttOptions,
		S3Options:    o.S3Options,
	}, nil
}
