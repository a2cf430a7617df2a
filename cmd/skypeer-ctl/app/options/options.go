package options

import (
	"errors"
	"fmt"
	"time"

	utilerrors "k8s.io/apimachinery/pkg/util/errors"
	cliflag "k8s.io/component-base/cli/flag"

	"github.com/autopeer-io/skypeer/pkg/app"
	"github.com/autopeer-io/skypeer/pkg/log"
	"github.com/autopeer-io/skypeer/pkg/options"
)

type CtlOptions struct {
	DroneID string        `json:"drone-id" mapstructure:"drone-id"`
	Timeout time.Duration `json:"timeout" mapstructure:"timeout"`

	MqttOptions *options.MqttOptions `json:"mqtt" mapstructure:"mqtt"`
	Log         *log.Options         `json:"log" mapstructure:"log"`
}

var _ app.NamedFlagSetOptions = (*CtlOptions)(nil)

func NewCtlOptions() *CtlOptions {
	o := &CtlOptions{
		DroneID:     "tello",
		Timeout:     15 * time.Second,
		MqttOptions: options.NewMqttOptions(),
		Log:         log.NewOptions(),
	}
	o.MqttOptions.Enabled = true
	o.Log.Level = "warn"

	return o
}

func (o *CtlOptions) Flags() cliflag.NamedFlagSets {
	fss := cliflag.NamedFlagSets{}
	fs := fss.FlagSet("ctl")
	fs.StringVar(&o.DroneID, "drone-id", o.DroneID, "Drone whose pilot receives the action.")
	fs.DurationVar(&o.Timeout, "timeout", o.Timeout, "How long to wait for the pilot's acknowledgement.")
	o.MqttOptions.AddFlags(fss.FlagSet("mqtt"))
	o.Log.AddFlags(fss.FlagSet("log"))
	return fss
}

func (o *CtlOptions) Complete() error {
	o.MqttOptions.Enabled = true
	log.Init(o.Log)
	return nil
}

func (o *CtlOptions) Validate() error {
	errs := []error{}
	if o.DroneID == "" {
		errs = append(errs, errors.New("--drone-id must not be empty"))
	}
	if o.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("--timeout must be positive, got %s", o.Timeout))
	}
	errs = append(errs, o.MqttOptions.Validate()...)
	errs = append(errs, o.Log.Validate()...)
	return utilerrors.NewAggregate(errs)
}
