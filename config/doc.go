// 版权所有 2026 FineTuneLab Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 config 提供管线与基础设施的统一配置加载。

配置优先级: 默认值 → YAML 文件 → 环境变量。环境变量以 GUARDRAILS_
为前缀,键名沿结构体 env 标签逐级拼接,例如
GUARDRAILS_PIPELINE_MODERATION_PROVIDER、GUARDRAILS_REDIS_ADDR。

Reloader 以轮询方式监听配置文件变更,重载成功后通知订阅方;
重载出错时保留当前配置不变。
*/
package config
