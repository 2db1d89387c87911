package minerchain

import "github.com/sirupsen/logrus"

var log = logrus.WithField("prefix", "minerchain")
