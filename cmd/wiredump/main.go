package main

import (
	"context"
	"encoding/hex"
	"flag"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/rs/zerolog"

	mysqlio "github.com/kasuganosora/mysqlwire/io"
	"github.com/kasuganosora/mysqlwire/pkg/config"
)

// wiredump 连上一个 MySQL 服务器，以接收开局的会话读取服务器的
// 问候包并打印出来，用于排查协议层问题
func main() {
	addr := flag.String("addr", "127.0.0.1:3306", "服务器地址")
	configPath := flag.String("config", "", "配置文件路径")
	flag.Parse()

	output := zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: time.RFC3339,
	}
	logger := zerolog.New(output).With().Timestamp().Str("app", "wiredump").Logger()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("加载配置失败")
	}
	if cfg.Log.TracePackets {
		zerolog.SetGlobalLevel(zerolog.TraceLevel)
	}

	conn, err := net.Dial("tcp", *addr)
	if err != nil {
		logger.Fatal().Err(err).Str("addr", *addr).Msg("连接服务器失败")
	}
	defer conn.Close()

	var transport mysqlio.Transport = mysqlio.NewConnTransport(conn)
	if cfg.Wire.Compression != "none" {
		ct, err := mysqlio.NewCompressedTransport(transport, mysqlio.CompressionAlgorithm(cfg.Wire.Compression))
		if err != nil {
			logger.Fatal().Err(err).Msg("创建压缩传输层失败")
		}
		ct.SetLevel(cfg.Wire.CompressionLevel)
		transport = ct
	}

	tx := mysqlio.NewTransmitter(transport)
	tx.SetBufferSize(cfg.Wire.BufferSize)
	tx.SetMaxPacketSize(cfg.Wire.MaxPacketSize)
	if cfg.Log.TracePackets {
		tx.SetLogger(logger)
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Wire.ReadTimeout)
	defer cancel()

	// 握手阶段由服务器先开口，这是一个接收开局的会话
	greeting, err := tx.Receive(ctx)
	if err != nil {
		logger.Fatal().Err(err).Msg("读取问候包失败")
	}

	logger.Info().Int("len", len(greeting)).Msg("收到服务器问候包")
	if len(greeting) > 0 {
		logger.Info().Uint8("protocol_version", greeting[0]).Msg("问候包首字节")
	}
	fmt.Print(hex.Dump(greeting))
}
