// Package transports registers every built-in transport with the default
// registry. Import it for side effects:
//
//	import _ "github.com/drblury/dynsub/transport/transports"
package transports

import (
	_ "github.com/drblury/dynsub/transport/aws"
	_ "github.com/drblury/dynsub/transport/channel"
	_ "github.com/drblury/dynsub/transport/kafka"
	_ "github.com/drblury/dynsub/transport/nats"
	_ "github.com/drblury/dynsub/transport/rabbitmq"
)
