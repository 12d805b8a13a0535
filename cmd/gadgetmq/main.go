/* Copyright 2024 Comcast Cable Communications Management, LLC
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 * http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package main is a simple single-network gadgets process that talks
// to an MQTT broker.
//
// The command line args follow those for mosquitto_sub.
package main

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Comcast/gadgets/sio"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"
)

func main() {

	var (
		// Follow mosquitto_sub command line args.

		broker      = flag.String("h", "tcp://localhost", "Broker hostname")
		clientId    = flag.String("i", "", "Client id")
		port        = flag.Int("p", 1883, "Broker port")
		keepAlive   = flag.Int("k", 10, "Keep-alive in seconds")
		userName    = flag.String("u", "", "Username")
		password    = flag.String("P", "", "Password")
		willTopic   = flag.String("will-topic", "", "Optional will topic")
		willPayload = flag.String("will-payload", "", "Optional will message")
		willQoS     = flag.Int("will-qos", 0, "Optional will QoS")
		willRetain  = flag.Bool("will-retain", false, "Optional will retention")
		reconnect   = flag.Bool("reconnect", false, "Automatically attempt to reconnect")
		clean       = flag.Bool("c", true, "Clean session")
		quiesce     = flag.Int("quiesce", 100, "Disconnection quiescence (in milliseconds)")

		certFilename = flag.String("cert", "", "Optional cert filename")
		keyFilename  = flag.String("key", "", "Optional key filename")
		insecure     = flag.Bool("insecure", false, "Skip broker cert checking")
		caFilename   = flag.String("cafile", "", "Optional CA cert filename")
		caPath       = flag.String("capath", "", "Optional path to CA cert filename")

		subTopics = flag.String("t", "", "subscription topic(s)")

		injectTopic          = flag.Bool("inject-topic", true, "put topic in map of incoming messages")
		wrapWithTopic        = flag.Bool("wrap-with-topic", false, "wrap non-maps in a map along with the topic")
		defaultOutboundTopic = flag.String("def-outbound-topic", "misc", "Default out-bound message topic")
		inTimeout            = flag.Duration("in-timeout", time.Second, "timeout for in-bound queuing")

		netFile = flag.String("net-file", "", "network spec filename")
		verbose = flag.Bool("v", false, "verbose")
	)

	flag.Parse()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if *netFile == "" {
		fmt.Fprintln(os.Stderr, "-net-file is required")
		os.Exit(1)
	}

	mqtt.ERROR = log.New(os.Stderr, "mqtt.error", 0)

	opts := mqtt.NewClientOptions()

	*broker = fmt.Sprintf("%s:%d", *broker, *port)
	opts.AddBroker(*broker)
	opts.SetClientID(*clientId)
	opts.SetKeepAlive(time.Second * time.Duration(*keepAlive))

	opts.Username = *userName
	opts.Password = *password
	opts.AutoReconnect = *reconnect
	opts.CleanSession = *clean

	if *willTopic != "" {
		if *willPayload == "" {
			log.Fatal("will topic without payload")
		}
		opts.WillEnabled = true
		opts.WillTopic = *willTopic
		opts.WillPayload = []byte(*willPayload)
		opts.WillRetained = *willRetain
		opts.WillQos = byte(*willQoS)
	}

	var rootCAs *x509.CertPool
	if *caPath != "" {
		if rootCAs, _ = x509.SystemCertPool(); rootCAs == nil {
			rootCAs = x509.NewCertPool()
			log.Printf("Including system CA certs")
		}

		if !strings.HasSuffix(*caPath, "/") {
			*caPath += "/"
		}
		filename := *caPath + *caFilename
		certs, err := os.ReadFile(filename)
		if err != nil {
			log.Fatalf("couldn't read '%s': %s", filename, err)
		}

		if ok := rootCAs.AppendCertsFromPEM(certs); !ok {
			log.Println("No certs appended, using system certs only")
		}
	}

	var certs []tls.Certificate
	if *keyFilename != "" {
		cert, err := tls.LoadX509KeyPair(*certFilename, *keyFilename)
		if err != nil {
			log.Fatal(err)
		}
		certs = []tls.Certificate{cert}
	}

	tlsConf := &tls.Config{
		InsecureSkipVerify: *insecure,
	}

	if rootCAs != nil {
		tlsConf.RootCAs = rootCAs
	}

	if certs != nil {
		tlsConf.Certificates = certs
	}

	opts.SetTLSConfig(tlsConf)

	opts.OnConnectionLost = func(client mqtt.Client, err error) {
		log.Printf("MQTT connection lost")
	}

	io := &Couplings{
		Quiesce:              uint(*quiesce),
		SubTopics:            *subTopics,
		InjectTopic:          *injectTopic,
		WrapWithTopic:        *wrapWithTopic,
		DefaultOutboundTopic: *defaultOutboundTopic,
		InTimeout:            *inTimeout,

		incoming: make(chan interface{}),
		outbound: make(chan *sio.Result),
		done:     make(chan bool),
	}

	opts.DefaultPublishHandler = func(client mqtt.Client, msg mqtt.Message) {
		io.inHandler(ctx, client, msg)
	}

	io.Client = mqtt.NewClient(opts)

	ns, err := sio.LoadNetSpec(*netFile)
	if err != nil {
		panic(err)
	}

	n, err := sio.NewNetwork(ctx, ns, io)
	if err != nil {
		panic(err)
	}
	if *verbose {
		n.Log = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
			With().Timestamp().Logger()
	}

	if err = io.Start(ctx); err != nil {
		panic(err)
	}

	go io.outLoop(ctx)

	if err := n.Loop(ctx); err != nil {
		panic(err)
	}

	if err = io.Stop(context.Background()); err != nil {
		panic(err)
	}
}

// Couplings is an sio.Couplings backed by an MQTT session.
type Couplings struct {
	Client               mqtt.Client
	Quiesce              uint
	SubTopics            string
	InjectTopic          bool
	WrapWithTopic        bool
	DefaultOutboundTopic string

	InTimeout time.Duration

	incoming chan interface{}
	outbound chan *sio.Result
	done     chan bool
}

// inHandler is a Paho publish handler, which is used to handle
// messages sent to us from the MQTT broker due to our subscriptions.
func (c *Couplings) inHandler(ctx context.Context, client mqtt.Client, msg mqtt.Message) {
	var (
		x       interface{}
		payload = msg.Payload()
		topic   = msg.Topic()
	)

	if err := json.Unmarshal(payload, &x); err != nil {
		log.Printf("Couldn't JSON-parse payload: %s", payload)
		x = string(payload)
	} else {
		if m, is := x.(map[string]interface{}); is {
			if c.InjectTopic {
				m["topic"] = topic
			}
		} else {
			if c.WrapWithTopic {
				x = map[string]interface{}{
					"topic":   topic,
					"payload": string(payload),
				}
			}
		}
	}

	to := time.NewTimer(c.InTimeout)

	select {
	case <-ctx.Done():
	case c.incoming <- x:
	case <-to.C:
		log.Printf("Not forwarding %s due to stall", topic)
	}
}

// Start creates the MQTT session.
func (c *Couplings) Start(ctx context.Context) error {
	log.Printf("Attempting to connect to broker")
	if token := c.Client.Connect(); token.Wait() && token.Error() != nil {
		return token.Error()
	}
	log.Printf("Connected to broker")

	for _, topic := range strings.Split(c.SubTopics, ",") {
		topic, qos := parseTopic(topic)
		if topic == "" {
			continue
		}
		log.Printf("Subscribing to %s (%d)", topic, qos)
		if t := c.Client.Subscribe(topic, qos, nil); t.Wait() && t.Error() != nil {
			return t.Error()
		}
	}

	return nil
}

// IO returns the channels that couple the network to the broker.
func (c *Couplings) IO(ctx context.Context) (chan interface{}, chan *sio.Result, chan bool, error) {
	return c.incoming, c.outbound, c.done, nil
}

// Stop disconnects from the broker.
func (c *Couplings) Stop(ctx context.Context) error {
	c.Client.Disconnect(c.Quiesce)
	return nil
}

// outLoop forwards emissions from the network to the MQTT broker.
//
// An emission whose effect carries a map with a "topic" property is
// published to that topic; everything else goes to the default
// out-bound topic.
func (c *Couplings) outLoop(ctx context.Context) {
LOOP:
	for {
		select {
		case <-ctx.Done():
			break LOOP
		case r := <-c.outbound:
			if r == nil {
				break LOOP
			}
			for _, em := range r.Emitted {
				topic, qos := parseTopic(c.DefaultOutboundTopic)
				if m, is := em.Effect.(map[string]interface{}); is {
					if t, have := m["topic"]; have {
						if s, is := t.(string); is {
							topic = s
						}
					}
					if n, have := m["qos"]; have {
						if f, is := n.(float64); is {
							qos = byte(f)
						} else {
							log.Printf("warning: ignoring qos %#v %T", n, n)
						}
					}
				}
				js, err := json.Marshal(em)
				if err != nil {
					log.Printf("Failed to marshal %#v", em)
					continue
				}
				token := c.Client.Publish(topic, qos, false, js)
				token.Wait()
				if token.Error() != nil {
					log.Fatalf("Publish error: %s", token.Error())
				}
			}
		}
	}
}

// parseTopic splits "topic:qos" into its parts (the qos defaulting
// to 0).
func parseTopic(s string) (string, byte) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) == 1 {
		return parts[0], 0
	}
	qos, err := strconv.Atoi(parts[1])
	if err != nil || qos < 0 || 2 < qos {
		qos = 0
	}
	return parts[0], byte(qos)
}
