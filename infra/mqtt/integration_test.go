package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/kilianp07/rescuedispatch/core/model"
)

// TestBrokerRoundTrip sends a dispatch through a real Mosquitto broker, acks
// it from a simulated team and reports a status update.
func TestBrokerRoundTrip(t *testing.T) {
	if os.Getenv("DOCKER_AVAILABLE") != "true" && os.Getenv("DOCKER_AVAILABLE") != "1" {
		t.Skip("docker not available")
	}
	ctx := context.Background()
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: tc.ContainerRequest{
			Image:        "eclipse-mosquitto:2.0",
			ExposedPorts: []string{"1883/tcp"},
			Cmd:          []string{"mosquitto", "-c", "/mosquitto-no-auth.conf"},
			WaitingFor:   wait.ForListeningPort("1883/tcp"),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("failed to start container: %v", err)
	}
	defer func() {
		if err := container.Terminate(ctx); err != nil {
			t.Fatalf("failed to terminate container: %v", err)
		}
	}()
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	port, err := container.MappedPort(ctx, "1883")
	if err != nil {
		t.Fatalf("port: %v", err)
	}
	broker := fmt.Sprintf("tcp://%s:%s", host, port.Port())

	var cli *PahoClient
	for i := 0; i < 5; i++ {
		cli, err = NewPahoClient(Config{Broker: broker, ClientID: "engine"})
		if err == nil {
			break
		}
		time.Sleep(500 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer cli.Disconnect()

	team := paho.NewClient(paho.NewClientOptions().AddBroker(broker).SetClientID("team-A"))
	if tok := team.Connect(); tok.Wait() && tok.Error() != nil {
		t.Fatalf("team connect: %v", tok.Error())
	}
	defer team.Disconnect(250)
	received := make(chan struct{}, 1)
	tok := team.Subscribe("rescue/teams/A/dispatch", 1, func(c paho.Client, m paho.Message) {
		var order struct {
			CommandID string `json:"command_id"`
		}
		if err := json.Unmarshal(m.Payload(), &order); err != nil {
			return
		}
		c.Publish("rescue/A/ack", 1, false, fmt.Sprintf(`{"command_id":%q}`, order.CommandID))
		received <- struct{}{}
	})
	if tok.Wait() && tok.Error() != nil {
		t.Fatalf("team subscribe: %v", tok.Error())
	}

	cmdID, err := cli.SendDispatch(notice())
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	ok, err := cli.WaitForAck(cmdID, 5*time.Second)
	if err != nil || !ok {
		t.Fatalf("no ack: %v", err)
	}
	<-received

	team.Publish("rescue/tasks/t1/status", 1, false, `{"status":"dispatched"}`).Wait()
	select {
	case u := <-cli.Statuses():
		if u.TaskID != "t1" || u.Status != model.TaskDispatched {
			t.Fatalf("unexpected status %+v", u)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for status")
	}
}
