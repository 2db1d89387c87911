package dag

import "github.com/sirupsen/logrus"

var log = logrus.WithField("prefix", "dag")
