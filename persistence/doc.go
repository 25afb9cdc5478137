// 版权所有 2026 FineTuneLab Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 persistence 提供审计记录的持久化落盘实现。

RedisAuditStore 将审计记录追加到 Redis Stream,按 MaxLen 近似裁剪,
适合高吞吐、允许有界保留的部署。GormAuditStore 写入关系型数据库,
支持按时间清理与查询,适合需要长期留存与审计检索的部署。

两者均实现 guardrails.AuditSink,可同时注册到同一个 Service。
*/
package persistence
